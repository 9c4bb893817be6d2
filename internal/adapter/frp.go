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

// FRPSBinary and FRPCBinary are overridable for tests/packaging.
var (
	FRPSBinary = "frps"
	FRPCBinary = "frpc"
)

type frpsFile struct {
	BindPort int    `toml:"bindPort"`
	Auth     *struct {
		Method string `toml:"method"`
		Token  string `toml:"token"`
	} `toml:"auth,omitempty"`
}

type frpProxy struct {
	Name       string `toml:"name"`
	Type       string `toml:"type"`
	LocalIP    string `toml:"localIP"`
	LocalPort  int    `toml:"localPort"`
	RemotePort int    `toml:"remotePort"`
}

type frpcFile struct {
	ServerAddr string `toml:"serverAddr"`
	ServerPort int    `toml:"serverPort"`
	Auth       *struct {
		Method string `toml:"method"`
		Token  string `toml:"token"`
	} `toml:"auth,omitempty"`
	Proxies []frpProxy `toml:"proxies"`
}

// FRPAdapter runs frps/frpc as supervised subprocesses configured
// through rendered TOML files (the config format frp has supported
// since v0.52, replacing the legacy INI format).
type FRPAdapter struct {
	sup       *supervisor.Supervisor
	configDir string
}

// NewFRPAdapter returns an FRPAdapter writing config files under
// configDir.
func NewFRPAdapter(sup *supervisor.Supervisor, configDir string) *FRPAdapter {
	return &FRPAdapter{sup: sup, configDir: configDir}
}

func (a *FRPAdapter) Name() core.Core { return core.CoreFRP }

func (a *FRPAdapter) configPath(tunnelID string) string {
	return filepath.Join(a.configDir, tunnelID+".toml")
}

func (a *FRPAdapter) Apply(ctx context.Context, tunnelID string, spec core.Spec) error {
	if err := ensureDir(a.configDir); err != nil {
		return fmt.Errorf("frp: %w", err)
	}

	token, _ := spec["token"].(string)

	var data []byte
	var err error
	var binary string

	if bindPort, ok := intVal(spec["bind_port"]); ok {
		var f frpsFile
		f.BindPort = bindPort
		if token != "" {
			f.Auth = &struct {
				Method string `toml:"method"`
				Token  string `toml:"token"`
			}{Method: "token", Token: token}
		}
		data, err = toml.Marshal(f)
		binary = FRPSBinary
	} else if serverAddr, ok := spec["server_addr"].(string); ok && serverAddr != "" {
		serverPort, _ := intVal(spec["server_port"])
		var f frpcFile
		f.ServerAddr = serverAddr
		f.ServerPort = serverPort
		if token != "" {
			f.Auth = &struct {
				Method string `toml:"method"`
				Token  string `toml:"token"`
			}{Method: "token", Token: token}
		}
		tunnelType, _ := spec["type"].(string)
		if tunnelType == "" {
			tunnelType = "tcp"
		}
		localIP, _ := spec["local_ip"].(string)
		if localIP == "" {
			localIP = "127.0.0.1"
		}

		switch portsVal := spec["ports"].(type) {
		case []map[string]any:
			for i, p := range portsVal {
				local, _ := intVal(p["local"])
				remote, _ := intVal(p["remote"])
				f.Proxies = append(f.Proxies, frpProxy{
					Name: fmt.Sprintf("%s_%d", tunnelID, i), Type: tunnelType,
					LocalIP: localIP, LocalPort: local, RemotePort: remote,
				})
			}
		default:
			localPort, _ := intVal(spec["local_port"])
			remotePort, _ := intVal(spec["remote_port"])
			f.Proxies = append(f.Proxies, frpProxy{
				Name: tunnelID, Type: tunnelType, LocalIP: localIP,
				LocalPort: localPort, RemotePort: remotePort,
			})
		}
		data, err = toml.Marshal(f)
		binary = FRPCBinary
	} else {
		return core.NewValidationError("frp: spec has neither bind_port nor server_addr")
	}
	if err != nil {
		return fmt.Errorf("frp: render config: %w", err)
	}

	path := a.configPath(tunnelID)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("frp: write config: %w", err)
	}

	if err := a.sup.Spawn(ctx, tunnelID, []string{binary, "-c", path}, nil, 500*time.Millisecond); err != nil {
		return &core.EngineFailure{TunnelID: tunnelID, LogTail: truncate(err.Error())}
	}
	return nil
}

func (a *FRPAdapter) Remove(ctx context.Context, tunnelID string) error {
	a.sup.Remove(tunnelID)
	_ = os.Remove(a.configPath(tunnelID))
	return nil
}

func (a *FRPAdapter) Status(ctx context.Context, tunnelID string) (bool, string) {
	return a.sup.IsRunning(tunnelID), a.sup.LogTail(tunnelID)
}

func intVal(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

var _ Core = (*FRPAdapter)(nil)
