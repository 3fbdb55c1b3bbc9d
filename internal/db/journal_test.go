package db

import (
	"testing"
	"time"

	"agentarena/internal/sim"
)

func TestNormalizeLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{in: 0, want: defaultRecentLimit},
		{in: -3, want: defaultRecentLimit},
		{in: 25, want: 25},
		{in: 50_000, want: maxRecentLimit},
	}
	for _, tc := range tests {
		if got := normalizeLimit(tc.in); got != tc.want {
			t.Fatalf("normalizeLimit(%d)=%d want %d", tc.in, got, tc.want)
		}
	}
}

func TestRecordPayloadKeepsActivity(t *testing.T) {
	at := time.Date(2024, 8, 17, 12, 0, 3, 0, time.UTC)
	rec := sim.Record{
		Kind: sim.RecordActivity,
		At:   at,
		Activity: &sim.Activity{
			ID:          "act-1",
			AgentID:     "BullRunner",
			Action:      sim.ActionBuy,
			Symbol:      "BTC",
			AmountUnits: 1_000,
			PriceMicros: 50_000 * sim.MicrosPerDollar,
			TotalMicros: 5_000 * sim.MicrosPerDollar,
			Timestamp:   at,
		},
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeRecord(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != sim.RecordActivity || got.Activity == nil || got.Activity.TotalMicros != rec.Activity.TotalMicros {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.At.Equal(at) {
		t.Fatalf("at=%s want %s", got.At, at)
	}
	if _, err := decodeRecord([]byte("{")); err == nil {
		t.Fatalf("expected malformed payload to fail")
	}
}
