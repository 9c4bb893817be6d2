package restore

import "github.com/google/wire"

// ProviderSet is the Wire provider set for the restoration loop.
var ProviderSet = wire.NewSet(New)
