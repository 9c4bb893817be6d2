package supervisor

import "github.com/google/wire"

// ProviderSet is the Wire provider set for the process supervisor.
var ProviderSet = wire.NewSet(New)
