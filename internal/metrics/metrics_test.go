package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	tests := []struct {
		name      string
		collector prometheus.Collector
	}{
		{"simRecordsTotal", simRecordsTotal},
		{"simDroppedRecordsTotal", simDroppedRecordsTotal},
		{"sessionsActive", sessionsActive},
		{"lobbiesStartedTotal", lobbiesStartedTotal},
		{"marketTicksTotal", marketTicksTotal},
		{"httpRequestsTotal", httpRequestsTotal},
		{"journalErrorsTotal", journalErrorsTotal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tt.collector.Describe(ch)
			close(ch)
			if len(ch) == 0 {
				t.Errorf("expected at least one descriptor for %s", tt.name)
			}
		})
	}
}

func TestObserveRecord(t *testing.T) {
	before := testutil.ToFloat64(simRecordsTotal.WithLabelValues("activity"))
	ObserveRecord("activity")
	after := testutil.ToFloat64(simRecordsTotal.WithLabelValues("activity"))
	if after != before+1 {
		t.Errorf("expected simRecordsTotal to increment by 1, got delta %f", after-before)
	}
}

func TestSessionGauge(t *testing.T) {
	before := testutil.ToFloat64(sessionsActive)
	SessionStarted()
	SessionStarted()
	SessionStopped()
	if got := testutil.ToFloat64(sessionsActive); got != before+1 {
		t.Errorf("expected gauge %f, got %f", before+1, got)
	}
}

func TestObserveDroppedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(simDroppedRecordsTotal)
	ObserveDropped(0)
	ObserveDropped(3)
	if got := testutil.ToFloat64(simDroppedRecordsTotal); got != before+3 {
		t.Errorf("expected %f, got %f", before+3, got)
	}
}
