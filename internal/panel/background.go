package panel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tunnelforge/orchestrator/internal/core"
)

// DefaultReapplyInterval is how often the background reconciler calls
// ReapplyAll (which reapplies pending, active and error tunnels), used
// when no `tunnel` setting overrides it.
const DefaultReapplyInterval = 30 * time.Second

// tunnelSettings reads the persisted `tunnel` Settings key
// (SPEC_FULL.md §3): {enabled, interval_seconds}. Missing or
// unparseable settings fall back to enabled=true at the given default
// interval, so a panel with no settings configured behaves exactly as
// it did before the setting existed.
func (p *Panel) tunnelSettings(ctx context.Context, fallback time.Duration) core.TunnelSettings {
	settings := core.TunnelSettings{Enabled: true, IntervalSeconds: int(fallback / time.Second)}
	raw, ok, err := p.store.GetSetting(ctx, core.TunnelSettingsKey)
	if err != nil || !ok {
		return settings
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		p.log.Warn("ignoring unparseable tunnel setting", "error", err)
		return core.TunnelSettings{Enabled: true, IntervalSeconds: int(fallback / time.Second)}
	}
	return settings
}

// RunReconciler blocks, calling ReapplyAll on the cadence named by the
// persisted `tunnel` setting (re-read every tick so an operator can
// retune or disable auto-reapply at runtime), falling back to
// interval when no setting is stored. Returns when ctx is canceled.
// Intended to be started as a goroutine from cmd/panel.
func (p *Panel) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReapplyInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			settings := p.tunnelSettings(ctx, interval)
			if !settings.Enabled {
				continue
			}
			if want := time.Duration(settings.IntervalSeconds) * time.Second; want > 0 && want != interval {
				interval = want
				ticker.Reset(interval)
			}
			if err := p.ReapplyAll(ctx); err != nil {
				p.log.Warn("background reconcile pass failed", "error", err)
			}
		}
	}
}

// PollNodeUsage fetches tunnel status for every active tunnel from one
// node — its foreign node, or its iran node when it has no foreign
// node — and pushes whatever usage it reports into PushUsage.
// This is the panel-driven complement to a node agent pushing usage
// of its own accord: some deployments run agents that only expose a
// pull-style status endpoint, so the panel polls on their behalf.
func (p *Panel) PollNodeUsage(ctx context.Context) error {
	tunnels, err := p.store.ListActiveTunnels(ctx)
	if err != nil {
		return err
	}
	for _, t := range tunnels {
		p.pollOneTunnelUsage(ctx, t.ID, t.ForeignNodeID)
		if t.ForeignNodeID == "" {
			p.pollOneTunnelUsage(ctx, t.ID, t.IranNodeID)
		}
	}
	return nil
}

func (p *Panel) pollOneTunnelUsage(ctx context.Context, tunnelID, nodeID string) {
	if nodeID == "" {
		return
	}
	node, err := p.store.GetNode(ctx, nodeID)
	if err != nil {
		return
	}
	st, err := p.dialer(node).TunnelStatus(ctx, tunnelID)
	if err != nil {
		p.log.Debug("usage poll failed", "tunnel_id", tunnelID, "node_id", nodeID, "error", err)
		return
	}
	total := st.Usage.IngressBytes + st.Usage.EgressBytes
	if err := p.PushUsage(ctx, tunnelID, nodeID, total); err != nil {
		p.log.Warn("failed to record polled usage", "tunnel_id", tunnelID, "error", err)
	}
}

// RunUsagePoller blocks, calling PollNodeUsage every interval until
// ctx is canceled.
func (p *Panel) RunUsagePoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReapplyInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PollNodeUsage(ctx); err != nil {
				p.log.Warn("usage poll pass failed", "error", err)
			}
		}
	}
}
