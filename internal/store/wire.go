package store

import "github.com/google/wire"

// ProviderSet is the Wire provider set for persistence.
var ProviderSet = wire.NewSet(
	NewSQLiteStore,
	wire.Bind(new(Store), new(*SQLiteStore)),
)
