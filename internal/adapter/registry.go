package adapter

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/tunnelforge/orchestrator/internal/core"
	"github.com/tunnelforge/orchestrator/internal/supervisor"
)

// Registry resolves a core.Core to its adapter implementation.
type Registry struct {
	adapters map[core.Core]Core
}

// NewRegistry wires up one adapter per supported core. configRoot is
// the directory each subprocess-backed adapter renders its per-tunnel
// config files under (e.g. /etc/tunnelforge/node).
func NewRegistry(sup *supervisor.Supervisor, configRoot string, log *slog.Logger) *Registry {
	r := &Registry{adapters: make(map[core.Core]Core, 5)}
	r.register(NewRatholeAdapter(sup, filepath.Join(configRoot, "rathole")))
	r.register(NewBackhaulAdapter(sup, filepath.Join(configRoot, "backhaul")))
	r.register(NewFRPAdapter(sup, filepath.Join(configRoot, "frp")))
	r.register(NewGostAdapter(sup))
	r.register(NewChiselAdapter(log))
	return r
}

func (r *Registry) register(a Core) {
	r.adapters[a.Name()] = a
}

// NewRegistryWithAdapters builds a Registry directly from a set of
// adapters, bypassing the default subprocess/chisel wiring. Useful
// for tests and for composing a registry with fewer than all five
// cores (e.g. a panel-local gost-only instance).
func NewRegistryWithAdapters(adapters ...Core) *Registry {
	r := &Registry{adapters: make(map[core.Core]Core, len(adapters))}
	for _, a := range adapters {
		r.register(a)
	}
	return r
}

// Get returns the adapter for the named core, or an error if it is
// not recognized.
func (r *Registry) Get(name core.Core) (Core, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("adapter: unsupported core %q", name)
	}
	return a, nil
}
