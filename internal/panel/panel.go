// Package panel implements the control-plane orchestrator: it owns
// node registration, tunnel lifecycle, and the per-tunnel spec
// derivation and node dispatch that turns a stored tunnel into a
// running pair of engine instances.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/tunnelforge/orchestrator/internal/accountant"
	"github.com/tunnelforge/orchestrator/internal/adapter"
	"github.com/tunnelforge/orchestrator/internal/core"
	"github.com/tunnelforge/orchestrator/internal/derive"
	"github.com/tunnelforge/orchestrator/internal/rpcclient"
	"github.com/tunnelforge/orchestrator/internal/store"
)

// NodeDialer builds the rpcclient used to reach a registered node.
// Overridable for tests.
type NodeDialer func(node *core.Node) *rpcclient.Client

// Panel is the orchestrator's in-process entry point: every exported
// method corresponds to one operation in spec.md §4.6's Panel
// Orchestrator.
type Panel struct {
	store      store.Store
	localCores *adapter.Registry // panel-local engine instances (any core)
	localAcct  accountant.Accountant
	dialer     NodeDialer
	panelPort  int
	minAgentVersion *semver.Version

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	log *slog.Logger
}

// New builds a Panel. panelPort is the panel's own configured API
// port (spec.md §4.2 rule 1): derived control ports that collide with
// it are rejected with a validation error. minAgentVersion is the
// lowest agent semantic version RegisterNode accepts (SPEC_FULL.md §3
// AgentVersion gate); an empty or unparseable string disables the
// gate.
func New(st store.Store, localCores *adapter.Registry, localAcct accountant.Accountant, dialer NodeDialer, panelPort int, minAgentVersion string, log *slog.Logger) *Panel {
	if dialer == nil {
		dialer = func(n *core.Node) *rpcclient.Client {
			return rpcclient.New(n.ID, "http://"+n.APIAddress())
		}
	}
	if log == nil {
		log = slog.Default().With("component", "panel")
	}
	minVer, _ := semver.NewVersion(minAgentVersion)
	return &Panel{
		store:      st,
		localCores: localCores,
		localAcct:  localAcct,
		dialer:     dialer,
		panelPort:  panelPort,
		minAgentVersion: minVer,
		locks:      make(map[string]*sync.Mutex),
		log:        log,
	}
}

// tunnelLock returns (creating if necessary) the mutex serializing
// all operations against a single tunnel id, per spec.md §5.
func (p *Panel) tunnelLock(tunnelID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[tunnelID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[tunnelID] = l
	}
	return l
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

// RegisterNode creates or updates a node's record. If the node
// reports an agent_version metadata value below the panel's
// configured minimum, registration is rejected (SPEC_FULL.md §3
// AgentVersion gate).
func (p *Panel) RegisterNode(ctx context.Context, n *core.Node) (*core.Node, error) {
	if n.Name == "" {
		return nil, core.NewValidationError("node name is required")
	}
	if p.minAgentVersion != nil {
		if reported := n.Metadata[core.MetaAgentVersion]; reported != "" {
			ver, err := semver.NewVersion(reported)
			if err != nil {
				return nil, core.NewValidationError("node %s reports unparseable agent_version %q", n.Name, reported)
			}
			if ver.LessThan(p.minAgentVersion) {
				return nil, core.NewValidationError("node %s agent_version %s is below the minimum supported version %s", n.Name, ver, p.minAgentVersion)
			}
		}
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = core.NodeActive
	}
	if err := p.store.PutNode(ctx, n); err != nil {
		return nil, fmt.Errorf("panel: register node: %w", err)
	}
	return n, nil
}

// DeleteNode removes a node, refusing when tunnels still reference it.
func (p *Panel) DeleteNode(ctx context.Context, nodeID string) error {
	tunnels, err := p.store.ListTunnelsByNode(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("panel: delete node: %w", err)
	}
	if len(tunnels) > 0 {
		return core.NewConflictError("node %s still has %d tunnel(s); delete them first", nodeID, len(tunnels))
	}
	return p.store.DeleteNode(ctx, nodeID)
}

// GetNode returns a single node.
func (p *Panel) GetNode(ctx context.Context, nodeID string) (*core.Node, error) {
	return p.store.GetNode(ctx, nodeID)
}

// ListNodes returns every registered node.
func (p *Panel) ListNodes(ctx context.Context) ([]*core.Node, error) {
	return p.store.ListNodes(ctx)
}

// ---------------------------------------------------------------------------
// Tunnels
// ---------------------------------------------------------------------------

// CreateTunnel validates and persists a new tunnel, then attempts to
// apply it immediately. A failure to apply does not prevent creation:
// the tunnel is persisted with status "error" so that ReapplyAll (or
// an explicit ApplyTunnel retry) can converge it later.
func (p *Panel) CreateTunnel(ctx context.Context, intent core.CreateIntent) (*core.Tunnel, error) {
	if intent.Name == "" {
		return nil, core.NewValidationError("tunnel name is required")
	}
	if intent.Core == "" {
		return nil, core.NewValidationError("tunnel core is required")
	}

	t := &core.Tunnel{
		ID:            uuid.NewString(),
		Name:          intent.Name,
		Core:          intent.Core,
		Type:          intent.Type,
		NodeID:        intent.NodeID,
		IranNodeID:    intent.IranNodeID,
		ForeignNodeID: intent.ForeignNodeID,
		Spec:          intent.Spec,
		Status:        core.TunnelPending,
		Revision:      1,
	}

	if t.TwoSided() && (t.IranNodeID == "" || t.ForeignNodeID == "") {
		return nil, core.NewValidationError("core %s requires both iran_node_id and foreign_node_id", t.Core)
	}
	// gost may run panel-local (no node bindings at all) or bound to a
	// single node; both are valid and resolved in applyTunnelLocked.

	if t.TwoSided() {
		if err := p.validateNodeRoles(ctx, t); err != nil {
			return nil, err
		}
	}

	if err := p.store.PutTunnel(ctx, t); err != nil {
		return nil, fmt.Errorf("panel: create tunnel: %w", err)
	}

	if err := p.ApplyTunnel(ctx, t.ID); err != nil {
		p.log.Warn("tunnel created but initial apply failed", "tunnel_id", t.ID, "error", err)
	}

	return p.store.GetTunnel(ctx, t.ID)
}

// UpdateTunnel merges patch into the stored tunnel and reapplies it
// when the patch carries a spec; a name-only patch is stored without
// reapplying.
func (p *Panel) UpdateTunnel(ctx context.Context, tunnelID string, patch core.UpdatePatch) (*core.Tunnel, error) {
	lock := p.tunnelLock(tunnelID)
	lock.Lock()
	defer lock.Unlock()

	t, err := p.store.GetTunnel(ctx, tunnelID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Spec != nil {
		t.Spec = patch.Spec
		t.Revision++
		t.Status = core.TunnelPending
	}

	if err := p.store.PutTunnel(ctx, t); err != nil {
		return nil, fmt.Errorf("panel: update tunnel: %w", err)
	}

	// Name-only patches do not re-apply: the engine instance is left
	// running untouched (spec.md §4.1, §8 round-trip law).
	if patch.Spec != nil {
		if err := p.applyTunnelLocked(ctx, t); err != nil {
			p.log.Warn("tunnel updated but reapply failed", "tunnel_id", t.ID, "error", err)
		}
	}
	return p.store.GetTunnel(ctx, tunnelID)
}

// DeleteTunnel removes a tunnel's engine instances from every node or
// panel-local adapter it touches, then deletes its record.
func (p *Panel) DeleteTunnel(ctx context.Context, tunnelID string) error {
	lock := p.tunnelLock(tunnelID)
	lock.Lock()
	defer lock.Unlock()

	t, err := p.store.GetTunnel(ctx, tunnelID)
	if err != nil {
		return err
	}

	p.removeFromNodes(ctx, t)

	return p.store.DeleteTunnel(ctx, tunnelID)
}

// validateNodeRoles enforces invariant I2 (spec.md §3): iran_node_id
// and foreign_node_id must refer to nodes whose metadata.role matches
// the name they're bound as. A panel-local iran side has no Node row
// to check.
func (p *Panel) validateNodeRoles(ctx context.Context, t *core.Tunnel) error {
	if t.IranNodeID != "" && t.IranNodeID != core.LocalNodeID {
		iran, err := p.store.GetNode(ctx, t.IranNodeID)
		if err != nil {
			return err
		}
		if iran.Role() != core.RoleIran {
			return core.NewValidationError("node %s is not configured with role %q", iran.ID, core.RoleIran)
		}
	}
	if t.ForeignNodeID != "" {
		foreign, err := p.store.GetNode(ctx, t.ForeignNodeID)
		if err != nil {
			return err
		}
		if foreign.Role() != core.RoleForeign {
			return core.NewValidationError("node %s is not configured with role %q", foreign.ID, core.RoleForeign)
		}
	}
	return nil
}

func (p *Panel) removeFromNodes(ctx context.Context, t *core.Tunnel) {
	switch {
	case t.IranNodeID == core.LocalNodeID:
		if p.localCores != nil {
			if ad, err := p.localCores.Get(t.Core); err == nil {
				_ = ad.Remove(ctx, t.ID)
			}
		}
	case t.IranNodeID != "":
		if node, err := p.store.GetNode(ctx, t.IranNodeID); err == nil {
			if err := p.dialer(node).Remove(ctx, t.ID); err != nil {
				p.log.Warn("failed to remove tunnel from iran node", "tunnel_id", t.ID, "node_id", node.ID, "error", err)
			}
		}
	}
	if t.ForeignNodeID != "" {
		if node, err := p.store.GetNode(ctx, t.ForeignNodeID); err == nil {
			if err := p.dialer(node).Remove(ctx, t.ID); err != nil {
				p.log.Warn("failed to remove tunnel from foreign node", "tunnel_id", t.ID, "node_id", node.ID, "error", err)
			}
		}
	}
	if t.NodeID != "" && t.IranNodeID == "" && t.ForeignNodeID == "" {
		if node, err := p.store.GetNode(ctx, t.NodeID); err == nil {
			if err := p.dialer(node).Remove(ctx, t.ID); err != nil {
				p.log.Warn("failed to remove tunnel from node", "tunnel_id", t.ID, "node_id", node.ID, "error", err)
			}
		}
	}
	if t.NodeID == "" && t.IranNodeID == "" && p.localCores != nil {
		if ad, err := p.localCores.Get(t.Core); err == nil {
			_ = ad.Remove(ctx, t.ID)
		}
		if p.localAcct != nil {
			_ = p.localAcct.Remove(ctx, t.ID)
		}
	}
}

// GetTunnel returns a single tunnel.
func (p *Panel) GetTunnel(ctx context.Context, tunnelID string) (*core.Tunnel, error) {
	return p.store.GetTunnel(ctx, tunnelID)
}

// ListTunnels returns every tunnel.
func (p *Panel) ListTunnels(ctx context.Context) ([]*core.Tunnel, error) {
	return p.store.ListTunnels(ctx)
}

// ApplyTunnel derives the per-core spec views for tunnelID and
// dispatches them to the owning node(s) or panel-local adapter,
// persisting the resulting status.
func (p *Panel) ApplyTunnel(ctx context.Context, tunnelID string) error {
	lock := p.tunnelLock(tunnelID)
	lock.Lock()
	defer lock.Unlock()

	t, err := p.store.GetTunnel(ctx, tunnelID)
	if err != nil {
		return err
	}
	return p.applyTunnelLocked(ctx, t)
}

func (p *Panel) applyTunnelLocked(ctx context.Context, t *core.Tunnel) error {
	if t.QuotaExceeded() {
		t.Status = core.TunnelError
		t.ErrorMessage = "quota exceeded"
		_ = p.store.PutTunnel(ctx, t)
		return core.NewValidationError("tunnel %s quota exceeded", t.ID)
	}

	var applyErr error
	switch {
	case t.Core == core.CoreGost && t.IranNodeID == "" && t.NodeID == "":
		applyErr = p.applyPanelLocal(ctx, t)
	case t.Core == core.CoreGost && t.NodeID != "":
		applyErr = p.applySingleNode(ctx, t)
	case t.TwoSided():
		applyErr = p.applyTwoSided(ctx, t)
	default:
		applyErr = core.NewValidationError("tunnel %s: cannot determine apply strategy for core %s", t.ID, t.Core)
	}

	if applyErr != nil {
		t.Status = core.TunnelError
		t.ErrorMessage = applyErr.Error()
	} else {
		t.Status = core.TunnelActive
		t.ErrorMessage = ""
	}
	if err := p.store.PutTunnel(ctx, t); err != nil {
		return fmt.Errorf("panel: persist tunnel status: %w", err)
	}
	return applyErr
}

func (p *Panel) applyPanelLocal(ctx context.Context, t *core.Tunnel) error {
	spec, err := derive.DeriveGost(t)
	if err != nil {
		return err
	}
	if p.localCores == nil {
		return fmt.Errorf("panel: no panel-local adapter registry configured")
	}
	ad, err := p.localCores.Get(core.CoreGost)
	if err != nil {
		return err
	}
	if err := ad.Apply(ctx, t.ID, spec); err != nil {
		return err
	}
	if p.localAcct != nil {
		if ports, perr := derive.ParsePorts(spec["ports"], ""); perr == nil {
			if err := p.localAcct.Install(ctx, t.ID, derive.PublicPorts(ports)); err != nil {
				p.log.Warn("failed to install panel-local traffic accounting", "tunnel_id", t.ID, "error", err)
			}
		}
	}
	return nil
}

func (p *Panel) applySingleNode(ctx context.Context, t *core.Tunnel) error {
	node, err := p.store.GetNode(ctx, t.NodeID)
	if err != nil {
		return err
	}
	spec, err := derive.DeriveGost(t)
	if err != nil {
		return err
	}
	return p.dialer(node).Apply(ctx, t.ID, t.Core, spec)
}

// applyTwoSided dispatches a reverse-core tunnel (rathole/backhaul/
// chisel/frp): the server (control) side runs on the iran node — or
// the panel itself, for cores that support a panel+node single-sided
// deployment — and the client side runs on the foreign node
// (spec.md §4.3: "Server spec applied to iran node, or to panel if
// single-node" / "Client spec applied to foreign node").
func (p *Panel) applyTwoSided(ctx context.Context, t *core.Tunnel) error {
	iranLocal := t.IranNodeID == core.LocalNodeID

	var iran *core.Node
	var iranIP string
	if iranLocal {
		if ip, ok := resolvePublicIP(); ok {
			iranIP = ip
		}
	} else {
		var err error
		iran, err = p.store.GetNode(ctx, t.IranNodeID)
		if err != nil {
			return fmt.Errorf("iran node: %w", err)
		}
		iranIP = iran.IPAddress()
	}

	foreign, err := p.store.GetNode(ctx, t.ForeignNodeID)
	if err != nil {
		return fmt.Errorf("foreign node: %w", err)
	}

	var sides *derive.Sides
	switch t.Core {
	case core.CoreRathole:
		sides, err = derive.DeriveRathole(t, iranIP, p.panelPort)
	case core.CoreChisel:
		sides, err = derive.DeriveChisel(t, iranIP, p.panelPort)
	case core.CoreFRP:
		sides, err = derive.DeriveFRP(t, iranIP, p.panelPort)
	case core.CoreBackhaul:
		sides, err = derive.DeriveBackhaul(t, iranIP, p.panelPort)
	default:
		return core.NewValidationError("unsupported two-sided core %s", t.Core)
	}
	if err != nil {
		return err
	}

	// The server (iran) side is applied before the client (foreign)
	// side: the client dials out to the control port, so it must come
	// up only after the server is listening (spec.md §9 restoration
	// ordering, §4.1 apply ordering).
	if iranLocal {
		if p.localCores == nil {
			return fmt.Errorf("panel: no panel-local adapter registry configured")
		}
		ad, err := p.localCores.Get(t.Core)
		if err != nil {
			return err
		}
		if err := ad.Apply(ctx, t.ID, sides.Server); err != nil {
			return fmt.Errorf("apply panel-local server side: %w", err)
		}
	} else if err := p.dialer(iran).Apply(ctx, t.ID, t.Core, sides.Server); err != nil {
		return fmt.Errorf("apply server side on iran node %s: %w", iran.ID, err)
	}
	if err := p.dialer(foreign).Apply(ctx, t.ID, t.Core, sides.Client); err != nil {
		return fmt.Errorf("apply client side on foreign node %s: %w", foreign.ID, err)
	}
	return nil
}

// resolvePublicIP reads the panel's own public address from the
// environment (spec.md §6: PANEL_PUBLIC_IP, falling back to
// PANEL_IP), used only when a reverse tunnel's iran side is hosted on
// the panel itself.
func resolvePublicIP() (string, bool) {
	if ip := os.Getenv("PANEL_PUBLIC_IP"); ip != "" {
		return ip, true
	}
	if ip := os.Getenv("PANEL_IP"); ip != "" {
		return ip, true
	}
	return "", false
}

// ReapplyAll reapplies every pending, active or erroring tunnel, used
// by the background reconciler.
func (p *Panel) ReapplyAll(ctx context.Context) error {
	tunnels, err := p.store.ListTunnels(ctx)
	if err != nil {
		return fmt.Errorf("panel: reapply all: %w", err)
	}
	var firstErr error
	for _, t := range tunnels {
		if t.Status == core.TunnelPending || t.Status == core.TunnelActive || t.Status == core.TunnelError {
			if err := p.ApplyTunnel(ctx, t.ID); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// TunnelStatusResult aggregates the stored tunnel row with live status
// from the node(s) it runs on.
type TunnelStatusResult struct {
	Tunnel        *core.Tunnel      `json:"tunnel"`
	IranStatus    *rpcclient.Status `json:"iran_status,omitempty"`
	ForeignStatus *rpcclient.Status `json:"foreign_status,omitempty"`
}

// GetStatus fetches the stored tunnel along with live status from
// whichever nodes it is bound to.
func (p *Panel) GetStatus(ctx context.Context, tunnelID string) (*TunnelStatusResult, error) {
	t, err := p.store.GetTunnel(ctx, tunnelID)
	if err != nil {
		return nil, err
	}
	result := &TunnelStatusResult{Tunnel: t}

	if t.IranNodeID != "" {
		if node, err := p.store.GetNode(ctx, t.IranNodeID); err == nil {
			if st, err := p.dialer(node).TunnelStatus(ctx, t.ID); err == nil {
				result.IranStatus = st
			}
		}
	}
	if t.ForeignNodeID != "" {
		if node, err := p.store.GetNode(ctx, t.ForeignNodeID); err == nil {
			if st, err := p.dialer(node).TunnelStatus(ctx, t.ID); err == nil {
				result.ForeignStatus = st
			}
		}
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

// PushUsage records a usage sample reported by a node and applies the
// monotonicity rule (spec.md §3 invariant I4) before persisting the
// tunnel's updated used_mb.
func (p *Panel) PushUsage(ctx context.Context, tunnelID, nodeID string, bytesReported int64) error {
	lock := p.tunnelLock(tunnelID)
	lock.Lock()
	defer lock.Unlock()

	t, err := p.store.GetTunnel(ctx, tunnelID)
	if err != nil {
		return err
	}

	currentMB := float64(bytesReported) / (1 << 20)
	t.UsedMB = accountant.Monotone(t.UsedMB, currentMB)

	if err := p.store.AppendUsage(ctx, &core.Usage{
		TunnelID:   tunnelID,
		NodeID:     nodeID,
		Bytes:      bytesReported,
		ReportedMB: currentMB,
	}); err != nil {
		return fmt.Errorf("panel: append usage: %w", err)
	}

	if err := p.store.PutTunnel(ctx, t); err != nil {
		return fmt.Errorf("panel: persist usage: %w", err)
	}

	if t.QuotaExceeded() {
		// Flip to error but leave the running engine alone: the next
		// ApplyTunnel/reconcile pass sees QuotaExceeded() in
		// applyTunnelLocked and refuses to restart it (spec.md §7:
		// "does not stop the engine immediately").
		p.log.Info("tunnel quota exceeded", "tunnel_id", tunnelID, "used_mb", t.UsedMB, "quota_mb", t.QuotaMB)
		t.Status = core.TunnelError
		t.ErrorMessage = "quota exceeded"
		_ = p.store.PutTunnel(ctx, t)
	}
	return nil
}
