package core

import "time"

// Core identifies the wire-level tunnel engine used by a tunnel.
type Core string

const (
	CoreRathole  Core = "rathole"
	CoreBackhaul Core = "backhaul"
	CoreChisel   Core = "chisel"
	CoreFRP      Core = "frp"
	CoreGost     Core = "gost"
)

// Reverse reports whether this core binds two distinct nodes (iran +
// foreign). Gost is the lone forwarding core and may run single-sided.
func (c Core) Reverse() bool {
	switch c {
	case CoreRathole, CoreBackhaul, CoreChisel, CoreFRP:
		return true
	default:
		return false
	}
}

// TunnelStatus is the reconciliation status of a tunnel.
type TunnelStatus string

const (
	TunnelPending TunnelStatus = "pending"
	TunnelActive  TunnelStatus = "active"
	TunnelError   TunnelStatus = "error"
)

// Spec is the normalized, core-specific configuration bag for a
// tunnel. Keys are spec.md §4.3's recognized per-core keys; unknown
// keys are preserved verbatim so that forward-compatible fields
// round-trip through persistence (spec.md §3 invariant I6).
type Spec map[string]any

// Clone returns a shallow copy of the spec bag, suitable for deriving
// a server- or client-side view without mutating the stored original.
func (s Spec) Clone() Spec {
	out := make(Spec, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Tunnel is a logical reverse- or forward-tunnel pipe bound to one or
// two nodes.
type Tunnel struct {
	ID            string
	Name          string
	Core          Core
	Type          string
	NodeID        string // legacy single-node binding; gost-single-node
	IranNodeID    string
	ForeignNodeID string
	Spec          Spec
	Status        TunnelStatus
	ErrorMessage  string
	Revision      int
	UsedMB        float64
	QuotaMB       float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// QuotaExceeded reports whether the tunnel has a quota configured and
// has met or exceeded it.
func (t *Tunnel) QuotaExceeded() bool {
	return t.QuotaMB > 0 && t.UsedMB >= t.QuotaMB
}

// TwoSided reports whether this tunnel requires both an iran and a
// foreign node (spec.md §3: "required and both present when core is
// reverse").
func (t *Tunnel) TwoSided() bool {
	return t.Core.Reverse()
}

// CreateIntent is the input to CreateTunnel (spec.md §4.1).
type CreateIntent struct {
	Name          string
	Core          Core
	Type          string
	NodeID        string
	IranNodeID    string
	ForeignNodeID string
	Spec          Spec
}

// UpdatePatch is the input to UpdateTunnel (spec.md §4.1).
type UpdatePatch struct {
	Name *string
	Spec Spec // nil means "no spec change"
}

// TunnelSettingsKey is the Settings table key the orchestrator core
// itself interprets (SPEC_FULL.md §3); `frp` and `telegram` keys also
// live in the same table but are opaque to the core.
const TunnelSettingsKey = "tunnel"

// TunnelSettings is the auto-reapply policy stored under
// TunnelSettingsKey: whether the background reconciler runs at all,
// and at what cadence.
type TunnelSettings struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// Usage is one appended sample of the Usage log (spec.md §6).
type Usage struct {
	ID         string
	TunnelID   string
	NodeID     string
	Bytes      int64
	ReportedMB float64
	CreatedAt  time.Time
}
