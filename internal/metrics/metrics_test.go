package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTurn(t *testing.T) {
	before := testutil.ToFloat64(turnsTotal.WithLabelValues("collecting_basics"))
	RecordTurn("collecting_basics")
	RecordTurn("collecting_basics")
	assert.Equal(t, before+2, testutil.ToFloat64(turnsTotal.WithLabelValues("collecting_basics")))
}

func TestRecordStageTransition(t *testing.T) {
	before := testutil.ToFloat64(stageTransitionsTotal.WithLabelValues("exploring_tools", "reviewing_workflow"))
	RecordStageTransition("exploring_tools", "reviewing_workflow")
	assert.Equal(t, before+1, testutil.ToFloat64(stageTransitionsTotal.WithLabelValues("exploring_tools", "reviewing_workflow")))
}

func TestRecordDialogueCall(t *testing.T) {
	tests := []struct {
		provider string
		status   string
	}{
		{"openai", StatusSuccess},
		{"openai", StatusError},
		{"anthropic", StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"_"+tt.status, func(t *testing.T) {
			before := testutil.ToFloat64(dialogueRequestsTotal.WithLabelValues(tt.provider, tt.status))
			RecordDialogueCall(tt.provider, tt.status, 250*time.Millisecond)
			assert.Equal(t, before+1, testutil.ToFloat64(dialogueRequestsTotal.WithLabelValues(tt.provider, tt.status)))
		})
	}
}

func TestCounters(t *testing.T) {
	fb := testutil.ToFloat64(dialogueFallbacksTotal)
	tv := testutil.ToFloat64(toolValidationFailuresTotal)
	ws := testutil.ToFloat64(workflowSynthesesTotal)
	mr := testutil.ToFloat64(mergeRejectionsTotal.WithLabelValues("tone"))

	RecordDialogueFallback()
	RecordToolValidationFailure()
	RecordWorkflowSynthesis()
	RecordMergeRejection("tone")

	assert.Equal(t, fb+1, testutil.ToFloat64(dialogueFallbacksTotal))
	assert.Equal(t, tv+1, testutil.ToFloat64(toolValidationFailuresTotal))
	assert.Equal(t, ws+1, testutil.ToFloat64(workflowSynthesesTotal))
	assert.Equal(t, mr+1, testutil.ToFloat64(mergeRejectionsTotal.WithLabelValues("tone")))
}

func TestMetrics_Concurrent(t *testing.T) {
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("concurrent", "200"))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordHTTPRequest("concurrent", "200")
		}()
	}
	wg.Wait()
	assert.Equal(t, before+50, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("concurrent", "200")))
}
