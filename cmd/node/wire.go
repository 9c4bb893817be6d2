//go:build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/tunnelforge/orchestrator/internal/accountant"
	"github.com/tunnelforge/orchestrator/internal/adapter"
	"github.com/tunnelforge/orchestrator/internal/agent"
	"github.com/tunnelforge/orchestrator/internal/config"
	"github.com/tunnelforge/orchestrator/internal/supervisor"
)

func wireApp(conf *config.Config) (*App, func(), error) {
	panic(wire.Build(
		newApp,
		provideConfigRoot,
		provideManifestPath,
		provideVersion,
		provideLogger,
		supervisor.ProviderSet,
		adapter.ProviderSet,
		accountant.ProviderSet,
		agent.ProviderSet,
	))
}
