//go:build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/tunnelforge/orchestrator/internal/accountant"
	"github.com/tunnelforge/orchestrator/internal/adapter"
	"github.com/tunnelforge/orchestrator/internal/config"
	"github.com/tunnelforge/orchestrator/internal/panel"
	"github.com/tunnelforge/orchestrator/internal/restore"
	"github.com/tunnelforge/orchestrator/internal/store"
	"github.com/tunnelforge/orchestrator/internal/supervisor"
)

func wireApp(conf *config.Config) (*App, func(), error) {
	panic(wire.Build(
		newApp,
		wire.Bind(new(store.Store), new(*store.SQLiteStore)),
		provideDBPath,
		provideConfigRoot,
		provideLogger,
		store.ProviderSet,
		supervisor.ProviderSet,
		adapter.ProviderSet,
		accountant.ProviderSet,
		panel.ProviderSet,
		restore.ProviderSet,
	))
}
