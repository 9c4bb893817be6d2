// Package config provides unified configuration loading from files,
// environment variables, and CLI flags using viper and pflag.
//
// Resolution order (highest wins):
//  1. CLI flags
//  2. Environment variables (spec.md §6's recognized names, e.g.
//     PANEL_PORT, NODE_ROLE — bound without the TUNNELFORGE_ prefix so
//     operators can set the documented variables directly)
//  3. Config file (config.yaml in . or /etc/tunnelforge/)
//  4. Compiled defaults
package config

// Viper keys for panel-mode configuration.
const (
	keyPanelPort          = "panel.port"
	keyPanelHost           = "panel.host"
	keyPanelPublicIP       = "panel.public_ip"
	keyPanelIP             = "panel.ip"
	keyPanelDBPath         = "panel.db_path"
	keyPanelConfigRoot     = "panel.config_root"
	keyPanelReapplyInterval = "panel.reapply_interval"
	keyPanelUsagePollInterval = "panel.usage_poll_interval"
	keyPanelMetricsAddress = "panel.metrics_address"
	keyPanelMinAgentVersion = "panel.min_agent_version"
)

// Viper keys for node-mode configuration.
const (
	keyNodeAPIPort      = "node.api_port"
	keyNodeRole         = "node.role"
	keyNodeID           = "node.id"
	keyNodePanelAddress = "node.panel_address"
	keyNodeConfigRoot     = "node.config_root"
	keyNodeManifestPath   = "node.manifest_path"
	keyNodeMetricsAddress = "node.metrics_address"
)

// Viper keys for the engine binary-override environment variables
// shared by both modes (spec.md §6).
const (
	keyRatholeBinary  = "rathole_binary"
	keyBackhaulBinary = "backhaul_binary"
	keyFRPSBinary     = "frps_binary"
	keyFRPCBinary     = "frpc_binary"
	keyGostBinary     = "gost_binary"
)
