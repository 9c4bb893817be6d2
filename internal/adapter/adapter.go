// Package adapter implements the per-core tunnel engine adapters: one
// per wire protocol (rathole, backhaul, frp, gost, chisel), each
// translating a derived core.Spec into a running engine instance and
// reporting that instance's health back as a core.TunnelStatus.
package adapter

import (
	"context"
	"os"

	"github.com/tunnelforge/orchestrator/internal/core"
)

// Core is the uniform contract every engine adapter satisfies. Apply
// is idempotent: calling it again with a changed spec replaces the
// running instance.
type Core interface {
	// Name is the core.Core value this adapter implements.
	Name() core.Core
	// Apply starts or restarts the engine instance for tunnelID using
	// spec, which is the server- or client-side view produced by
	// internal/derive for this node's role.
	Apply(ctx context.Context, tunnelID string, spec core.Spec) error
	// Remove stops and forgets the engine instance for tunnelID.
	Remove(ctx context.Context, tunnelID string) error
	// Status reports whether tunnelID's instance is currently running,
	// along with a log tail to aid diagnosis when it is not.
	Status(ctx context.Context, tunnelID string) (running bool, logTail string)
}

// ensureDir creates dir (and parents) if it does not already exist.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
