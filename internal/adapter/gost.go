package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/tunnelforge/orchestrator/internal/core"
	"github.com/tunnelforge/orchestrator/internal/derive"
	"github.com/tunnelforge/orchestrator/internal/supervisor"
)

// GostBinary is overridable for tests/packaging.
var GostBinary = "gost"

// GostAdapter runs gost as a supervised subprocess with a plain argv
// forwarder spec (-L flags) — gost takes no config file; neither does
// the embedded chisel core, while the other three render one.
type GostAdapter struct {
	sup *supervisor.Supervisor
}

// NewGostAdapter returns a GostAdapter.
func NewGostAdapter(sup *supervisor.Supervisor) *GostAdapter {
	return &GostAdapter{sup: sup}
}

func (a *GostAdapter) Name() core.Core { return core.CoreGost }

func (a *GostAdapter) Apply(ctx context.Context, tunnelID string, spec core.Spec) error {
	targetHost, _ := spec["target_host"].(string)
	if targetHost == "" {
		targetHost = "127.0.0.1"
	}

	ports, err := derive.ParsePorts(spec["ports"], targetHost)
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		return core.NewValidationError("gost: spec has no ports to forward")
	}

	argv := []string{GostBinary}
	for _, p := range ports {
		argv = append(argv, "-L", fmt.Sprintf("tcp://:%d/%s:%d", p.Public, p.TargetHost, p.TargetPort))
	}

	if err := a.sup.Spawn(ctx, tunnelID, argv, nil, 500*time.Millisecond); err != nil {
		return &core.EngineFailure{TunnelID: tunnelID, LogTail: truncate(err.Error())}
	}
	return nil
}

func (a *GostAdapter) Remove(ctx context.Context, tunnelID string) error {
	a.sup.Remove(tunnelID)
	return nil
}

func (a *GostAdapter) Status(ctx context.Context, tunnelID string) (bool, string) {
	return a.sup.IsRunning(tunnelID), a.sup.LogTail(tunnelID)
}

var _ Core = (*GostAdapter)(nil)
