package agent

import "github.com/google/wire"

// ProviderSet is the Wire provider set for the node agent.
var ProviderSet = wire.NewSet(New)
