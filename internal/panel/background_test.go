package panel

import (
	"context"
	"testing"
	"time"

	"github.com/tunnelforge/orchestrator/internal/core"
)

func TestTunnelSettingsDefaultsToEnabledAtFallbackInterval(t *testing.T) {
	st := newFakeStore()
	p := New(st, nil, nil, dialerFor(nil), 0, "", nil)

	got := p.tunnelSettings(context.Background(), 30*time.Second)
	if !got.Enabled || got.IntervalSeconds != 30 {
		t.Fatalf("got %+v, want enabled at 30s", got)
	}
}

func TestTunnelSettingsReadsPersistedOverride(t *testing.T) {
	st := newFakeStore()
	p := New(st, nil, nil, dialerFor(nil), 0, "", nil)

	if err := st.PutSetting(context.Background(), core.TunnelSettingsKey, []byte(`{"enabled":false,"interval_seconds":5}`)); err != nil {
		t.Fatalf("PutSetting: %v", err)
	}

	got := p.tunnelSettings(context.Background(), 30*time.Second)
	if got.Enabled || got.IntervalSeconds != 5 {
		t.Fatalf("got %+v, want disabled at 5s", got)
	}
}
