package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config wraps a viper instance and provides typed accessors for every
// configuration key. Create one via New().
type Config struct {
	v *viper.Viper
}

// envBinding pairs a viper key with the exact environment variable
// name spec.md §6 documents for it. Panel/node operators set these
// directly; there is no common prefix to derive them from.
type envBinding struct {
	key string
	env string
}

var envBindings = []envBinding{
	{keyPanelPort, "PANEL_PORT"},
	{keyPanelHost, "PANEL_HOST"},
	{keyPanelPublicIP, "PANEL_PUBLIC_IP"},
	{keyPanelIP, "PANEL_IP"},
	{keyPanelDBPath, "PANEL_DB_PATH"},
	{keyPanelConfigRoot, "PANEL_CONFIG_ROOT"},
	{keyNodeAPIPort, "NODE_API_PORT"},
	{keyNodeRole, "NODE_ROLE"},
	{keyNodeID, "NODE_ID"},
	{keyNodePanelAddress, "NODE_PANEL_ADDRESS"},
	{keyNodeConfigRoot, "NODE_CONFIG_ROOT"},
	{keyNodeMetricsAddress, "NODE_METRICS_ADDRESS"},
	{keyRatholeBinary, "RATHOLE_BINARY"},
	{keyBackhaulBinary, "BACKHAUL_CLIENT_BINARY"},
	{keyFRPSBinary, "FRPS_BINARY"},
	{keyFRPCBinary, "FRPC_BINARY"},
	{keyGostBinary, "GOST_BINARY"},
}

// New initialises a Config by loading values from environment
// variables, the config file, and compiled defaults (in that priority
// order; CLI flags, bound later via BindFlags, take highest priority).
func New() (*Config, error) {
	v := viper.New()

	for _, o := range PanelOptions {
		v.SetDefault(o.Key, o.Default)
	}
	for _, o := range NodeOptions {
		v.SetDefault(o.Key, o.Default)
	}
	for _, o := range BinaryOptions {
		v.SetDefault(o.Key, o.Default)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tunnelforge/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFoundErr) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("failed to bind env var %s: %w", b.env, err)
		}
	}

	return &Config{v: v}, nil
}

// BindFlags registers CLI flags for the given option slice and binds
// them to the underlying viper keys so that flag values override file
// and environment sources.
func (c *Config) BindFlags(fs *pflag.FlagSet, options []Option) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case []string:
			fs.StringSlice(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Panel-mode accessors
// ---------------------------------------------------------------------------

func (c *Config) PanelPort() int            { return c.v.GetInt(keyPanelPort) }
func (c *Config) PanelHost() string         { return c.v.GetString(keyPanelHost) }
func (c *Config) PanelAddress() string      { return fmt.Sprintf("%s:%d", c.PanelHost(), c.PanelPort()) }
func (c *Config) PanelPublicIP() string     { return c.v.GetString(keyPanelPublicIP) }
func (c *Config) PanelIP() string           { return c.v.GetString(keyPanelIP) }
func (c *Config) PanelDBPath() string       { return c.v.GetString(keyPanelDBPath) }
func (c *Config) PanelConfigRoot() string   { return c.v.GetString(keyPanelConfigRoot) }
func (c *Config) PanelReapplyInterval() time.Duration {
	return c.v.GetDuration(keyPanelReapplyInterval)
}
func (c *Config) PanelUsagePollInterval() time.Duration {
	return c.v.GetDuration(keyPanelUsagePollInterval)
}
func (c *Config) PanelMetricsAddress() string { return c.v.GetString(keyPanelMetricsAddress) }
func (c *Config) PanelMinAgentVersion() string { return c.v.GetString(keyPanelMinAgentVersion) }

// ---------------------------------------------------------------------------
// Node-mode accessors
// ---------------------------------------------------------------------------

func (c *Config) NodeAPIPort() int        { return c.v.GetInt(keyNodeAPIPort) }
func (c *Config) NodeRole() string        { return c.v.GetString(keyNodeRole) }
func (c *Config) NodeID() string          { return c.v.GetString(keyNodeID) }
func (c *Config) NodePanelAddress() string { return c.v.GetString(keyNodePanelAddress) }
func (c *Config) NodeConfigRoot() string  { return c.v.GetString(keyNodeConfigRoot) }
func (c *Config) NodeManifestPath() string   { return c.v.GetString(keyNodeManifestPath) }
func (c *Config) NodeMetricsAddress() string { return c.v.GetString(keyNodeMetricsAddress) }

// ---------------------------------------------------------------------------
// Binary-override accessors
// ---------------------------------------------------------------------------

func (c *Config) RatholeBinary() string  { return c.v.GetString(keyRatholeBinary) }
func (c *Config) BackhaulBinary() string { return c.v.GetString(keyBackhaulBinary) }
func (c *Config) FRPSBinary() string     { return c.v.GetString(keyFRPSBinary) }
func (c *Config) FRPCBinary() string     { return c.v.GetString(keyFRPCBinary) }
func (c *Config) GostBinary() string     { return c.v.GetString(keyGostBinary) }
