// Package restore implements the panel's startup Restoration Loop: it
// scans persisted tunnels and reconstructs panel-local engines,
// panel-local forwards, and node-side applications in the order
// required by spec.md §5 ("panel-local engines → panel-local forwards
// → node-side applications; node-side waits for the panel control
// ports to be listening").
package restore

import (
	"context"
	"log/slog"
	"time"

	"github.com/tunnelforge/orchestrator/internal/adapter"
	"github.com/tunnelforge/orchestrator/internal/core"
	"github.com/tunnelforge/orchestrator/internal/panel"
	"github.com/tunnelforge/orchestrator/internal/store"
)

// ProbeInterval and ProbeTimeout bound how long the loop waits for a
// panel-local engine's control port to report running before moving
// on to the tunnels that depend on it.
const (
	ProbeInterval = 200 * time.Millisecond
	ProbeTimeout  = 5 * time.Second
)

// Restorer runs the ordered restoration pass at panel startup.
type Restorer struct {
	panel      *panel.Panel
	store      store.Store
	localCores *adapter.Registry
	log        *slog.Logger
}

// New builds a Restorer. localCores may be nil if the panel hosts no
// engines locally.
func New(p *panel.Panel, st store.Store, localCores *adapter.Registry, log *slog.Logger) *Restorer {
	if log == nil {
		log = slog.Default().With("component", "restore")
	}
	return &Restorer{panel: p, store: st, localCores: localCores, log: log}
}

// reconcilable tunnel statuses mirror panel.ReapplyAll's selection:
// pending and active tunnels are retried, and tunnels left in error
// from a prior run get another chance to converge.
func reconcilable(t *core.Tunnel) bool {
	return t.Status == core.TunnelPending || t.Status == core.TunnelActive || t.Status == core.TunnelError
}

func isPanelLocalEngine(t *core.Tunnel) bool {
	return t.Core.Reverse() && t.IranNodeID == core.LocalNodeID
}

func isPanelLocalForward(t *core.Tunnel) bool {
	return t.Core == core.CoreGost && t.NodeID == "" && t.IranNodeID == ""
}

// Run executes the three-phase restoration pass. It does not fail
// fast: each tunnel that cannot be restored is left in the "error"
// state for the panel's background reconciler to retry later.
func (r *Restorer) Run(ctx context.Context) error {
	tunnels, err := r.store.ListTunnels(ctx)
	if err != nil {
		return err
	}

	var localEngines, localForwards, nodeSide []*core.Tunnel
	for _, t := range tunnels {
		if !reconcilable(t) {
			continue
		}
		switch {
		case isPanelLocalEngine(t):
			localEngines = append(localEngines, t)
		case isPanelLocalForward(t):
			localForwards = append(localForwards, t)
		default:
			nodeSide = append(nodeSide, t)
		}
	}

	r.log.Info("restoration starting", "panel_local_engines", len(localEngines), "panel_local_forwards", len(localForwards), "node_side", len(nodeSide))

	for _, t := range localEngines {
		if err := r.panel.ApplyTunnel(ctx, t.ID); err != nil {
			r.log.Warn("failed to restore panel-local engine", "tunnel_id", t.ID, "error", err)
			continue
		}
		r.waitForControlPort(ctx, t)
	}

	for _, t := range localForwards {
		if err := r.panel.ApplyTunnel(ctx, t.ID); err != nil {
			r.log.Warn("failed to restore panel-local forward", "tunnel_id", t.ID, "error", err)
		}
	}

	for _, t := range nodeSide {
		if err := r.panel.ApplyTunnel(ctx, t.ID); err != nil {
			r.log.Warn("failed to restore node-side tunnel", "tunnel_id", t.ID, "error", err)
		}
	}

	r.log.Info("restoration complete")
	return nil
}

// waitForControlPort polls the panel-local adapter until it reports
// tunnel t running or ProbeTimeout elapses, so that node-side applies
// issued afterward find a listening control port (spec.md §5).
func (r *Restorer) waitForControlPort(ctx context.Context, t *core.Tunnel) {
	if r.localCores == nil {
		return
	}
	ad, err := r.localCores.Get(t.Core)
	if err != nil {
		return
	}

	deadline := time.Now().Add(ProbeTimeout)
	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()

	for {
		if running, _ := ad.Status(ctx, t.ID); running {
			return
		}
		if time.Now().After(deadline) {
			r.log.Warn("timed out waiting for panel-local control port", "tunnel_id", t.ID)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
