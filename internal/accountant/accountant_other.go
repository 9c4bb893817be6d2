//go:build !linux

package accountant

import "log/slog"

// New returns the process-I/O fallback Accountant on platforms
// without the nftables subsystem.
func New(logger *slog.Logger) Accountant {
	return NewProcessIOAccountant()
}
