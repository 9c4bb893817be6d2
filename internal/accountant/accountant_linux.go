//go:build linux

package accountant

import "log/slog"

// New returns the nftables-backed Accountant on Linux. It does not
// probe whether nftables is usable and never falls back to the
// process-I/O accountant.
func New(logger *slog.Logger) Accountant {
	return NewNftablesAccountant(logger)
}
