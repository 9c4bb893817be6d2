package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/tunnelforge/orchestrator/internal/core"
	"github.com/tunnelforge/orchestrator/internal/supervisor"
)

// BackhaulBinary is overridable for tests/packaging.
var BackhaulBinary = "backhaul"

type backhaulServerFile struct {
	Server struct {
		BindAddr  string   `toml:"bind_addr"`
		Transport string   `toml:"transport"`
		Token     string   `toml:"token,omitempty"`
		Ports     []string `toml:"ports,omitempty"`
	} `toml:"server"`
}

type backhaulClientFile struct {
	Client struct {
		RemoteAddr string `toml:"remote_addr"`
		Transport  string `toml:"transport"`
		Token      string `toml:"token,omitempty"`
	} `toml:"client"`
}

// backhaulClientOptionKeys lists optional tuning knobs of backhaul's
// client. Apply does not copy them into the rendered client config,
// which carries only remote_addr, transport and token.
var backhaulClientOptionKeys = []string{
	"connection_pool", "retry_interval", "nodelay", "keepalive_period",
	"log_level", "mux_session", "mux_version", "sniffer", "dial_timeout",
}

// BackhaulAdapter runs backhaul's client or server binary as a
// supervised subprocess configured through a rendered TOML file.
type BackhaulAdapter struct {
	sup       *supervisor.Supervisor
	configDir string
}

// NewBackhaulAdapter returns a BackhaulAdapter writing config files
// under configDir.
func NewBackhaulAdapter(sup *supervisor.Supervisor, configDir string) *BackhaulAdapter {
	return &BackhaulAdapter{sup: sup, configDir: configDir}
}

func (a *BackhaulAdapter) Name() core.Core { return core.CoreBackhaul }

func (a *BackhaulAdapter) configPath(tunnelID string) string {
	return filepath.Join(a.configDir, tunnelID+".toml")
}

func (a *BackhaulAdapter) Apply(ctx context.Context, tunnelID string, spec core.Spec) error {
	if err := ensureDir(a.configDir); err != nil {
		return fmt.Errorf("backhaul: %w", err)
	}

	transport, _ := spec["transport"].(string)
	if transport == "" {
		transport = "tcp"
	}
	token, _ := spec["token"].(string)

	var data []byte
	var err error
	if bindAddr, ok := spec["bind_addr"].(string); ok && bindAddr != "" {
		var f backhaulServerFile
		f.Server.BindAddr = bindAddr
		f.Server.Transport = transport
		f.Server.Token = token
		f.Server.Ports = stringSlice(spec["ports"])
		data, err = toml.Marshal(f)
	} else if remoteAddr, ok := spec["remote_addr"].(string); ok && remoteAddr != "" {
		var f backhaulClientFile
		f.Client.RemoteAddr = remoteAddr
		f.Client.Transport = transport
		f.Client.Token = token
		data, err = toml.Marshal(f)
	} else {
		return core.NewValidationError("backhaul: spec has neither bind_addr nor remote_addr")
	}
	if err != nil {
		return fmt.Errorf("backhaul: render config: %w", err)
	}

	path := a.configPath(tunnelID)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("backhaul: write config: %w", err)
	}

	if err := a.sup.Spawn(ctx, tunnelID, []string{BackhaulBinary, "-c", path}, nil, 500*time.Millisecond); err != nil {
		return &core.EngineFailure{TunnelID: tunnelID, LogTail: truncate(err.Error())}
	}
	return nil
}

func (a *BackhaulAdapter) Remove(ctx context.Context, tunnelID string) error {
	a.sup.Remove(tunnelID)
	_ = os.Remove(a.configPath(tunnelID))
	return nil
}

func (a *BackhaulAdapter) Status(ctx context.Context, tunnelID string) (bool, string) {
	return a.sup.IsRunning(tunnelID), a.sup.LogTail(tunnelID)
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

var _ Core = (*BackhaulAdapter)(nil)
