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

// RatholeBinary is overridable so tests and packaging can point at a
// bundled binary rather than relying on $PATH.
var RatholeBinary = "rathole"

type ratholeService struct {
	Type      string `toml:"type"`
	BindAddr  string `toml:"bind_addr,omitempty"`
	LocalAddr string `toml:"local_addr,omitempty"`
	Token     string `toml:"token,omitempty"`
}

type ratholeTransport struct {
	Type string `toml:"type"`
}

type ratholeServerFile struct {
	Server struct {
		BindAddr     string                    `toml:"bind_addr"`
		DefaultToken string                    `toml:"default_token"`
		Transport    ratholeTransport          `toml:"transport"`
		Services     map[string]ratholeService `toml:"services"`
	} `toml:"server"`
}

type ratholeClientFile struct {
	Client struct {
		RemoteAddr   string                    `toml:"remote_addr"`
		DefaultToken string                    `toml:"default_token"`
		Transport    ratholeTransport          `toml:"transport"`
		Services     map[string]ratholeService `toml:"services"`
	} `toml:"client"`
}

// RatholeAdapter runs rathole's client or server binary as a
// supervised subprocess, one instance per tunnel, configured through a
// rendered TOML file.
type RatholeAdapter struct {
	sup       *supervisor.Supervisor
	configDir string
}

// NewRatholeAdapter returns a RatholeAdapter writing config files
// under configDir.
func NewRatholeAdapter(sup *supervisor.Supervisor, configDir string) *RatholeAdapter {
	return &RatholeAdapter{sup: sup, configDir: configDir}
}

func (a *RatholeAdapter) Name() core.Core { return core.CoreRathole }

func (a *RatholeAdapter) configPath(tunnelID string) string {
	return filepath.Join(a.configDir, tunnelID+".toml")
}

func (a *RatholeAdapter) Apply(ctx context.Context, tunnelID string, spec core.Spec) error {
	if err := ensureDir(a.configDir); err != nil {
		return fmt.Errorf("rathole: %w", err)
	}

	mode, _ := spec["mode"].(string)
	transport, _ := spec["transport"].(string)
	if transport == "" {
		transport = "tcp"
	}
	token, _ := spec["token"].(string)
	ports := intSlice(spec["ports"])

	var data []byte
	var err error
	switch mode {
	case "server":
		bindAddr, _ := spec["bind_addr"].(string)
		var f ratholeServerFile
		f.Server.BindAddr = bindAddr
		f.Server.DefaultToken = token
		f.Server.Transport.Type = transport
		f.Server.Services = make(map[string]ratholeService, len(ports))
		for _, p := range ports {
			f.Server.Services[serviceName(tunnelID, p)] = ratholeService{
				Type:     transport,
				BindAddr: fmt.Sprintf("0.0.0.0:%d", p),
			}
		}
		data, err = toml.Marshal(f)
	case "client":
		remoteAddr, _ := spec["remote_addr"].(string)
		var f ratholeClientFile
		f.Client.RemoteAddr = remoteAddr
		f.Client.DefaultToken = token
		f.Client.Transport.Type = transport
		f.Client.Services = make(map[string]ratholeService, len(ports))
		for _, p := range ports {
			f.Client.Services[serviceName(tunnelID, p)] = ratholeService{
				Type:      transport,
				LocalAddr: fmt.Sprintf("127.0.0.1:%d", p),
			}
		}
		data, err = toml.Marshal(f)
	default:
		return core.NewValidationError("rathole: unknown mode %q", mode)
	}
	if err != nil {
		return fmt.Errorf("rathole: render config: %w", err)
	}

	path := a.configPath(tunnelID)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("rathole: write config: %w", err)
	}

	if err := a.sup.Spawn(ctx, tunnelID, []string{RatholeBinary, "-c", path}, nil, 500*time.Millisecond); err != nil {
		return &core.EngineFailure{TunnelID: tunnelID, LogTail: truncate(err.Error())}
	}
	return nil
}

func (a *RatholeAdapter) Remove(ctx context.Context, tunnelID string) error {
	a.sup.Remove(tunnelID)
	_ = os.Remove(a.configPath(tunnelID))
	return nil
}

func (a *RatholeAdapter) Status(ctx context.Context, tunnelID string) (bool, string) {
	return a.sup.IsRunning(tunnelID), a.sup.LogTail(tunnelID)
}

func serviceName(tunnelID string, port int) string {
	return fmt.Sprintf("%s_%d", tunnelID, port)
}

func truncate(s string) string {
	if len(s) <= core.MaxLogTail {
		return s
	}
	return s[len(s)-core.MaxLogTail:]
}

func intSlice(v any) []int {
	switch vv := v.(type) {
	case []int:
		return vv
	case []any:
		out := make([]int, 0, len(vv))
		for _, item := range vv {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case float64:
				out = append(out, int(n))
			}
		}
		return out
	default:
		return nil
	}
}

var _ Core = (*RatholeAdapter)(nil)
