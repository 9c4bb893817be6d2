// Package main is the entry point for the tunnelforge node agent:
// the process that runs on iran and foreign nodes, receives
// apply/remove/status calls from the panel, and drives the local
// engine adapters and traffic accountant.
package main

import (
	"log/slog"

	"github.com/tunnelforge/orchestrator/internal/agent"
)

// App bundles the node agent's assembled dependency graph.
type App struct {
	Agent *agent.Agent
	Log   *slog.Logger
}
