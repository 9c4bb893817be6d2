// Package store provides the SQLite-backed persistent store for
// nodes, tunnels, usage samples, and settings. It is the concrete
// implementation of the "transactional key/row store" spec.md §1
// treats as an external collaborator — the orchestrator core only
// depends on the Store interface.
package store

import (
	"context"

	"github.com/tunnelforge/orchestrator/internal/core"
)

// Store is the persistence contract the panel orchestrator is built
// against.
type Store interface {
	// Nodes
	PutNode(ctx context.Context, n *core.Node) error
	GetNode(ctx context.Context, id string) (*core.Node, error)
	ListNodes(ctx context.Context) ([]*core.Node, error)
	DeleteNode(ctx context.Context, id string) error

	// Tunnels
	PutTunnel(ctx context.Context, t *core.Tunnel) error
	GetTunnel(ctx context.Context, id string) (*core.Tunnel, error)
	ListTunnels(ctx context.Context) ([]*core.Tunnel, error)
	ListActiveTunnels(ctx context.Context) ([]*core.Tunnel, error)
	ListTunnelsByNode(ctx context.Context, nodeID string) ([]*core.Tunnel, error)
	DeleteTunnel(ctx context.Context, id string) error

	// Usage
	AppendUsage(ctx context.Context, u *core.Usage) error

	// Settings
	GetSetting(ctx context.Context, key string) ([]byte, bool, error)
	PutSetting(ctx context.Context, key string, value []byte) error

	Close() error
}
