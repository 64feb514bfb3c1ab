package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/AgentBuilder/internal/api"
	"github.com/BTreeMap/AgentBuilder/internal/lockfile"
	"github.com/BTreeMap/AgentBuilder/internal/recovery"
	"github.com/BTreeMap/AgentBuilder/internal/store"
	"github.com/BTreeMap/AgentBuilder/internal/twiliowhatsapp"
)

func newServeCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the optional WhatsApp webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	cmd.Flags().StringVar(&cfg.PublicBaseURL, "public-url", cfg.PublicBaseURL, "externally visible base URL used to verify Twilio signatures (overrides $PUBLIC_BASE_URL)")
	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	lock, err := lockfile.Acquire(cfg.StateDir, "serve")
	if err != nil {
		return err
	}
	defer lock.Release()

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	apiOpts, err := buildAPIOptions(cfg)
	if err != nil {
		return err
	}

	rm := recovery.NewRecoveryManager()
	rm.RegisterRecoverable("sessions", a.sessions)
	if _, err := rm.RecoverAll(ctx); err != nil {
		slog.Error("Recovery finished with errors", "error", err)
	}

	sweeper := store.NewSweeper(a.store, cfg.SweepInterval, cfg.Retention)
	sweepDone := make(chan struct{})
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()
	defer func() {
		cancelSweep()
		<-sweepDone
	}()

	slog.Info("Bootstrapping AgentBuilder", "addr", cfg.APIAddr, "whatsapp", len(apiOpts) > 1)
	srv := api.NewServer(a.sessions, apiOpts...)
	if err := srv.Run(ctx, cfg.APIAddr); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	slog.Info("AgentBuilder exited successfully")
	return nil
}

// buildAPIOptions constructs API server options. The WhatsApp webhook is enabled only
// when Twilio credentials are configured.
func buildAPIOptions(cfg *Config) ([]api.Option, error) {
	opts := []api.Option{api.WithShutdownTimeout(cfg.ShutdownTimeout)}
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		slog.Debug("Twilio credentials not set, WhatsApp webhook disabled")
		return opts, nil
	}

	sender, err := twiliowhatsapp.NewClient(
		twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID),
		twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken),
		twiliowhatsapp.WithFromWhats(cfg.TwilioFromNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to create Twilio client: %w", err)
	}

	var validator *twiliowhatsapp.WebhookValidator
	if cfg.ValidateSignature {
		if cfg.PublicBaseURL == "" {
			return nil, fmt.Errorf("PUBLIC_BASE_URL is required to validate Twilio signatures; set TWILIO_VALIDATE_SIGNATURE=false to skip")
		}
		validator = twiliowhatsapp.NewWebhookValidator(cfg.TwilioAuthToken, cfg.PublicBaseURL)
	} else {
		slog.Warn("Twilio signature validation disabled")
	}
	return append(opts, api.WithWhatsApp(sender, validator)), nil
}
