package config

import (
	"strings"
	"time"
)

// Option describes a single configuration entry: its viper key, the
// corresponding CLI flag name, the compiled default, and a
// human-readable description shown in --help output.
type Option struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

// PanelOptions defines the configuration entries available in panel
// mode (spec.md §6).
var PanelOptions = []Option{
	{Key: keyPanelPort, Flag: toFlag(keyPanelPort), Default: 8000, Description: "Panel HTTP listen port"},
	{Key: keyPanelHost, Flag: toFlag(keyPanelHost), Default: "0.0.0.0", Description: "Panel HTTP listen host"},
	{Key: keyPanelPublicIP, Flag: toFlag(keyPanelPublicIP), Default: "", Description: "Panel public IP advertised to nodes"},
	{Key: keyPanelIP, Flag: toFlag(keyPanelIP), Default: "", Description: "Panel IP, fallback when public_ip is unset"},
	{Key: keyPanelDBPath, Flag: toFlag(keyPanelDBPath), Default: "/var/lib/tunnelforge/panel.db", Description: "SQLite database path"},
	{Key: keyPanelConfigRoot, Flag: toFlag(keyPanelConfigRoot), Default: "/etc/tunnelforge/panel", Description: "Root directory for panel-local engine config files"},
	{Key: keyPanelReapplyInterval, Flag: toFlag(keyPanelReapplyInterval), Default: 30 * time.Second, Description: "Interval between background reconciliation passes"},
	{Key: keyPanelUsagePollInterval, Flag: toFlag(keyPanelUsagePollInterval), Default: 60 * time.Second, Description: "Interval between node usage polls"},
	{Key: keyPanelMetricsAddress, Flag: toFlag(keyPanelMetricsAddress), Default: ":9090", Description: "Prometheus metrics listen address"},
	{Key: keyPanelMinAgentVersion, Flag: toFlag(keyPanelMinAgentVersion), Default: "v0.1.0", Description: "Minimum agent semantic version accepted by RegisterNode"},
}

// NodeOptions defines the configuration entries available in node
// mode.
var NodeOptions = []Option{
	{Key: keyNodeAPIPort, Flag: toFlag(keyNodeAPIPort), Default: 8888, Description: "Node agent API listen port"},
	{Key: keyNodeRole, Flag: toFlag(keyNodeRole), Default: "", Description: "Node role: iran or foreign"},
	{Key: keyNodeID, Flag: toFlag(keyNodeID), Default: "", Description: "Node id; not read by the node agent, and not generated when unset"},
	{Key: keyNodePanelAddress, Flag: toFlag(keyNodePanelAddress), Default: "", Description: "Panel base URL; not read by the node agent, which neither registers nor pushes usage"},
	{Key: keyNodeConfigRoot, Flag: toFlag(keyNodeConfigRoot), Default: "/etc/tunnelforge/node", Description: "Root directory for node-local engine config files"},
	{Key: keyNodeManifestPath, Flag: toFlag(keyNodeManifestPath), Default: "/var/lib/tunnelforge/node-manifest.json", Description: "Path to the on-disk manifest of applied tunnels, replayed at startup"},
	{Key: keyNodeMetricsAddress, Flag: toFlag(keyNodeMetricsAddress), Default: ":9091", Description: "Prometheus metrics listen address"},
}

// BinaryOptions defines the engine binary override entries shared by
// both modes (spec.md §6: "Binary overrides").
var BinaryOptions = []Option{
	{Key: keyRatholeBinary, Flag: toFlag(keyRatholeBinary), Default: "rathole", Description: "Path or PATH-resolved name of the rathole binary"},
	{Key: keyBackhaulBinary, Flag: toFlag(keyBackhaulBinary), Default: "backhaul", Description: "Path or PATH-resolved name of the backhaul binary"},
	{Key: keyFRPSBinary, Flag: toFlag(keyFRPSBinary), Default: "frps", Description: "Path or PATH-resolved name of the frp server binary"},
	{Key: keyFRPCBinary, Flag: toFlag(keyFRPCBinary), Default: "frpc", Description: "Path or PATH-resolved name of the frp client binary"},
	{Key: keyGostBinary, Flag: toFlag(keyGostBinary), Default: "gost", Description: "Path or PATH-resolved name of the gost binary"},
}

// toFlag converts a viper key like "panel.reapply_interval" into a CLI
// flag like "reapply-interval" by lower-casing, replacing dots and
// underscores with hyphens, and stripping the "panel-"/"node-" prefix.
func toFlag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	flag = strings.TrimPrefix(flag, "panel-")
	flag = strings.TrimPrefix(flag, "node-")
	return flag
}
