package adapter

import "github.com/google/wire"

// ProviderSet is the Wire provider set for engine adapters.
var ProviderSet = wire.NewSet(NewRegistry)
