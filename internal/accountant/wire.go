package accountant

import "github.com/google/wire"

// ProviderSet is the Wire provider set for traffic accounting. New
// resolves to the platform-appropriate implementation at build time
// (nftables on Linux, /proc/<pid>/io elsewhere).
var ProviderSet = wire.NewSet(New)
