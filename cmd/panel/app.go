// Package main is the entry point for the tunnelforge panel: the
// control-plane process that owns the SQLite-backed tunnel/node store,
// derives per-core engine specs, and drives node agents over HTTP.
package main

import (
	"log/slog"

	"github.com/tunnelforge/orchestrator/internal/accountant"
	"github.com/tunnelforge/orchestrator/internal/adapter"
	"github.com/tunnelforge/orchestrator/internal/panel"
	"github.com/tunnelforge/orchestrator/internal/restore"
	"github.com/tunnelforge/orchestrator/internal/store"
)

// App bundles the panel's assembled dependency graph. Dependencies
// are wired in wire.go/wire_gen.go; main.go only drives its lifecycle.
type App struct {
	Store      store.Store
	LocalCores *adapter.Registry
	LocalAcct  accountant.Accountant
	Panel      *panel.Panel
	Restorer   *restore.Restorer
	Log        *slog.Logger
}
