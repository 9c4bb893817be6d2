// Package derive turns a stored tunnel's normalized Spec into the
// concrete server-side and client-side views each core adapter
// consumes, and resolves the panel-reachable address a node must dial
// back to.
package derive

import (
	"crypto/md5"
	"encoding/hex"
	"math/big"
)

// Per-core base control ports (spec.md §4.3). A deterministic, tunnel-
// id-derived offset is added so that multiple tunnels on the same core
// do not collide on the default control port.
const (
	baseRathole  = 23333
	baseFRP      = 7000
	baseBackhaul = 3080
)

// controlPortOffset reproduces the control-port hash: the first 8 hex
// digits of MD5(tunnelID), read as an integer, mod 1000. Two tunnel
// ids get the same offset whenever their 32-bit prefixes are equal
// mod 1000, so offsets are not unique across tunnels.
func controlPortOffset(tunnelID string) int {
	sum := md5.Sum([]byte(tunnelID))
	prefix := hex.EncodeToString(sum[:])[:8]
	n := new(big.Int)
	n.SetString(prefix, 16)
	mod := new(big.Int).Mod(n, big.NewInt(1000))
	return int(mod.Int64())
}

// RatholeControlPort derives the bind_addr port for a rathole server
// spec that does not already pin one.
func RatholeControlPort(tunnelID string) int {
	return baseRathole + controlPortOffset(tunnelID)
}

// ChiselControlPort derives chisel's server_port (the reverse-tunnel
// control port), offset from the first forwarded port rather than a
// fixed base — mirroring the upstream derivation so that multiple
// chisel tunnels on a host still spread across distinct ports.
func ChiselControlPort(tunnelID string, firstPort int) int {
	return firstPort + 10000 + controlPortOffset(tunnelID)
}

// FRPControlPort derives the frps bind_port for a tunnel that does not
// pin one explicitly.
func FRPControlPort(tunnelID string) int {
	return baseFRP + controlPortOffset(tunnelID)
}

// BackhaulControlPort derives the backhaul server bind_addr port.
func BackhaulControlPort(tunnelID string) int {
	return baseBackhaul + controlPortOffset(tunnelID)
}
