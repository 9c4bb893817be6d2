// Package agent implements the node-side service: it receives
// apply/remove/status calls from the panel over HTTP, drives the
// per-core adapters and traffic accountant, and persists a local
// manifest of applied tunnels so a restarted agent can reconcile
// without waiting for the panel to replay every tunnel.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tunnelforge/orchestrator/internal/accountant"
	"github.com/tunnelforge/orchestrator/internal/adapter"
	"github.com/tunnelforge/orchestrator/internal/core"
	"github.com/tunnelforge/orchestrator/internal/derive"
)

// AppliedTunnel is the locally persisted record of a tunnel's
// last-applied spec, keyed by tunnel id.
type AppliedTunnel struct {
	TunnelID string    `json:"tunnel_id"`
	Core     core.Core `json:"core"`
	Spec     core.Spec `json:"spec"`
}

// Agent is the node-side runtime: a registry of per-core adapters, a
// traffic accountant, and the local manifest of currently applied
// tunnels.
type Agent struct {
	mu           sync.Mutex
	registry     *adapter.Registry
	acct         accountant.Accountant
	manifestPath string
	applied      map[string]AppliedTunnel
	log          *slog.Logger
	version      string
}

// New builds an Agent. manifestPath is where the applied-tunnel
// manifest is persisted between restarts.
func New(registry *adapter.Registry, acct accountant.Accountant, manifestPath, version string, log *slog.Logger) *Agent {
	if log == nil {
		log = slog.Default().With("component", "agent")
	}
	return &Agent{
		registry:     registry,
		acct:         acct,
		manifestPath: manifestPath,
		applied:      make(map[string]AppliedTunnel),
		log:          log,
		version:      version,
	}
}

// LoadManifest reads the persisted manifest (if any) and re-applies
// every entry, so that a node agent restart converges back to the
// state the panel last asked for without an explicit reapply call.
func (a *Agent) LoadManifest(ctx context.Context) error {
	data, err := os.ReadFile(a.manifestPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent: read manifest: %w", err)
	}

	var entries []AppliedTunnel
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("agent: parse manifest: %w", err)
	}

	for _, e := range entries {
		if err := a.Apply(ctx, e.TunnelID, e.Core, e.Spec); err != nil {
			a.log.Error("reconcile: failed to reapply tunnel from manifest", "tunnel_id", e.TunnelID, "error", err)
			continue
		}
	}
	a.log.Info("manifest reconciled", "count", len(entries))
	return nil
}

// Apply derives the forwarded ports from spec, starts (or restarts)
// the named core's engine instance, and registers traffic counters
// for the tunnel's ports before persisting the manifest entry.
func (a *Agent) Apply(ctx context.Context, tunnelID string, coreName core.Core, spec core.Spec) error {
	ad, err := a.registry.Get(coreName)
	if err != nil {
		return core.NewValidationError("%v", err)
	}

	if err := ad.Apply(ctx, tunnelID, spec); err != nil {
		return err
	}

	if a.acct != nil {
		if ports, perr := derive.ParsePorts(spec["ports"], ""); perr == nil && len(ports) > 0 {
			if err := a.acct.Install(ctx, tunnelID, derive.PublicPorts(ports)); err != nil {
				a.log.Warn("traffic accounting not installed", "tunnel_id", tunnelID, "error", err)
			}
		}
	}

	a.mu.Lock()
	a.applied[tunnelID] = AppliedTunnel{TunnelID: tunnelID, Core: coreName, Spec: spec}
	err = a.saveManifestLocked()
	a.mu.Unlock()
	return err
}

// Remove stops the tunnel's engine instance, tears down its traffic
// counters, and forgets it in the manifest.
func (a *Agent) Remove(ctx context.Context, tunnelID string) error {
	a.mu.Lock()
	entry, ok := a.applied[tunnelID]
	delete(a.applied, tunnelID)
	err := a.saveManifestLocked()
	a.mu.Unlock()

	if !ok {
		return nil
	}

	ad, adErr := a.registry.Get(entry.Core)
	if adErr == nil {
		if rmErr := ad.Remove(ctx, tunnelID); rmErr != nil {
			a.log.Warn("failed to remove engine instance", "tunnel_id", tunnelID, "error", rmErr)
		}
	}
	if a.acct != nil {
		if rmErr := a.acct.Remove(ctx, tunnelID); rmErr != nil {
			a.log.Warn("failed to remove traffic counters", "tunnel_id", tunnelID, "error", rmErr)
		}
	}
	return err
}

// Status reports whether tunnelID's engine instance is running and,
// when the accountant is available, its cumulative traffic sample.
type Status struct {
	Running bool              `json:"running"`
	LogTail string            `json:"log_tail,omitempty"`
	Usage   accountant.Sample `json:"usage"`
}

func (a *Agent) Status(ctx context.Context, tunnelID string) (Status, error) {
	a.mu.Lock()
	entry, ok := a.applied[tunnelID]
	a.mu.Unlock()
	if !ok {
		return Status{}, &core.ErrTunnelNotFound{TunnelID: tunnelID}
	}

	ad, err := a.registry.Get(entry.Core)
	if err != nil {
		return Status{}, err
	}
	running, logTail := ad.Status(ctx, tunnelID)

	var sample accountant.Sample
	if a.acct != nil {
		if s, err := a.acct.Read(ctx, tunnelID); err == nil {
			sample = s
		}
	}
	return Status{Running: running, LogTail: logTail, Usage: sample}, nil
}

// NodeStatus is the overall health payload for GET /agent/status.
type NodeStatus struct {
	Version       string `json:"version"`
	TunnelCount   int    `json:"tunnel_count"`
}

func (a *Agent) NodeStatus() NodeStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return NodeStatus{Version: a.version, TunnelCount: len(a.applied)}
}

func (a *Agent) saveManifestLocked() error {
	entries := make([]AppliedTunnel, 0, len(a.applied))
	for _, e := range a.applied {
		entries = append(entries, e)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("agent: marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.manifestPath), 0o755); err != nil {
		return fmt.Errorf("agent: manifest dir: %w", err)
	}
	if err := os.WriteFile(a.manifestPath, data, 0o600); err != nil {
		return fmt.Errorf("agent: write manifest: %w", err)
	}
	return nil
}
