// Package recovery runs startup recovery so sessions interrupted by a restart
// continue where they left off.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Recoverable is a component that restores its state during application startup.
type Recoverable interface {
	RecoverState(ctx context.Context) (int, error)
}

// RecoverableFunc adapts a function to Recoverable.
type RecoverableFunc func(ctx context.Context) (int, error)

// RecoverState implements Recoverable.
func (f RecoverableFunc) RecoverState(ctx context.Context) (int, error) { return f(ctx) }

// Result summarizes one RecoverAll pass.
type Result struct {
	Components int
	Recovered  int
	Errors     int
}

// RecoveryManager orchestrates recovery of all registered components
type RecoveryManager struct {
	recoverables []named
}

type named struct {
	name string
	r    Recoverable
}

// NewRecoveryManager creates a new recovery manager
func NewRecoveryManager() *RecoveryManager {
	return &RecoveryManager{}
}

// RegisterRecoverable adds a component that can be recovered
func (rm *RecoveryManager) RegisterRecoverable(name string, r Recoverable) {
	if name == "" {
		name = fmt.Sprintf("%T", r)
	}
	rm.recoverables = append(rm.recoverables, named{name: name, r: r})
}

// RecoverAll recovers every registered component. A failing component does not stop
// the others; the returned error reports how many failed.
func (rm *RecoveryManager) RecoverAll(ctx context.Context) (Result, error) {
	slog.Info("Starting application recovery", "components", len(rm.recoverables))

	res := Result{Components: len(rm.recoverables)}
	for _, c := range rm.recoverables {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := c.r.RecoverState(ctx)
		res.Recovered += n
		if err != nil {
			slog.Error("Component recovery failed", "error", err, "component", c.name)
			res.Errors++
			continue
		}
		slog.Debug("Component recovered", "component", c.name, "items", n)
	}

	slog.Info("Application recovery completed", "recovered", res.Recovered, "errors", res.Errors)
	if res.Errors > 0 {
		return res, fmt.Errorf("recovery completed with %d errors out of %d components", res.Errors, res.Components)
	}
	return res, nil
}
