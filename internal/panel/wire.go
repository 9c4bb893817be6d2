package panel

import "github.com/google/wire"

// ProviderSet is the Wire provider set for the panel orchestrator.
var ProviderSet = wire.NewSet(New)
