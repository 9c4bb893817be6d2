package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	chclient "github.com/jpillora/chisel/client"
	chserver "github.com/jpillora/chisel/server"

	"github.com/tunnelforge/orchestrator/internal/core"
)

// ChiselAdapter embeds jpillora/chisel's client and server as
// in-process libraries, one chisel instance per tunnel. Unlike the
// other four cores, chisel ships a pure-Go client and server package
// that can be driven directly without a subprocess boundary.
type ChiselAdapter struct {
	log *slog.Logger

	mu       sync.Mutex
	servers  map[string]*runningServer
	clients  map[string]*runningClient
	tails    map[string]string
}

type runningServer struct {
	srv    *chserver.Server
	cancel context.CancelFunc
}

type runningClient struct {
	cli    *chclient.Client
	cancel context.CancelFunc
}

// NewChiselAdapter returns a ChiselAdapter. A nil logger falls back
// to slog.Default().
func NewChiselAdapter(log *slog.Logger) *ChiselAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &ChiselAdapter{
		log:     log,
		servers: make(map[string]*runningServer),
		clients: make(map[string]*runningClient),
		tails:   make(map[string]string),
	}
}

func (a *ChiselAdapter) Name() core.Core { return core.CoreChisel }

func (a *ChiselAdapter) Apply(ctx context.Context, tunnelID string, spec core.Spec) error {
	a.Remove(ctx, tunnelID)

	if serverPort, ok := spec["server_port"]; ok {
		port, _ := intVal(serverPort)
		return a.applyServer(ctx, tunnelID, port, spec)
	}
	if serverURL, ok := spec["server_url"].(string); ok && serverURL != "" {
		return a.applyClient(ctx, tunnelID, serverURL, spec)
	}
	return core.NewValidationError("chisel: spec has neither server_port nor server_url")
}

func (a *ChiselAdapter) applyServer(ctx context.Context, tunnelID string, port int, spec core.Spec) error {
	cfg := &chserver.Config{Reverse: true}
	srv, err := chserver.NewServer(cfg)
	if err != nil {
		return &core.EngineFailure{TunnelID: tunnelID, LogTail: truncate(err.Error())}
	}

	if auth, _ := spec["auth"].(string); auth != "" {
		user, pass, ok := splitAuth(auth)
		if ok {
			if err := srv.AddUser(user, pass, "0.0.0.0/0"); err != nil {
				return &core.EngineFailure{TunnelID: tunnelID, LogTail: truncate(err.Error())}
			}
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := srv.StartContext(runCtx, "0.0.0.0", fmt.Sprintf("%d", port)); err != nil {
		cancel()
		return &core.EngineFailure{TunnelID: tunnelID, LogTail: truncate(err.Error())}
	}

	go func() {
		if err := srv.Wait(); err != nil {
			a.mu.Lock()
			a.tails[tunnelID] = truncate(err.Error())
			a.mu.Unlock()
		}
	}()

	a.mu.Lock()
	a.servers[tunnelID] = &runningServer{srv: srv, cancel: cancel}
	a.mu.Unlock()
	a.log.Info("chisel server applied", "tunnel_id", tunnelID, "port", port)
	return nil
}

func (a *ChiselAdapter) applyClient(ctx context.Context, tunnelID string, serverURL string, spec core.Spec) error {
	remotes := buildRemotes(spec)
	if len(remotes) == 0 {
		return core.NewValidationError("chisel: spec has no ports to reverse-forward")
	}

	cfg := &chclient.Config{
		Server:  serverURL,
		Remotes: remotes,
	}
	if auth, _ := spec["auth"].(string); auth != "" {
		cfg.Auth = auth
	}
	if fp, _ := spec["fingerprint"].(string); fp != "" {
		cfg.Fingerprint = fp
	}

	cli, err := chclient.NewClient(cfg)
	if err != nil {
		return &core.EngineFailure{TunnelID: tunnelID, LogTail: truncate(err.Error())}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := cli.Start(runCtx); err != nil {
		cancel()
		return &core.EngineFailure{TunnelID: tunnelID, LogTail: truncate(err.Error())}
	}

	go func() {
		if err := cli.Wait(); err != nil {
			a.mu.Lock()
			a.tails[tunnelID] = truncate(err.Error())
			a.mu.Unlock()
		}
	}()

	a.mu.Lock()
	a.clients[tunnelID] = &runningClient{cli: cli, cancel: cancel}
	a.mu.Unlock()
	a.log.Info("chisel client applied", "tunnel_id", tunnelID, "server", serverURL)
	return nil
}

// buildRemotes renders chisel's "R:public_port:target_host:target_port"
// reverse-remote specs for every forwarded port.
func buildRemotes(spec core.Spec) []string {
	targetHost, _ := spec["target_host"].(string)
	if targetHost == "" {
		targetHost = "127.0.0.1"
	}
	var remotes []string
	for _, p := range intSlice(spec["ports"]) {
		remotes = append(remotes, fmt.Sprintf("R:%d:%s:%d", p, targetHost, p))
	}
	return remotes
}

func splitAuth(auth string) (user, pass string, ok bool) {
	for i := range auth {
		if auth[i] == ':' {
			return auth[:i], auth[i+1:], true
		}
	}
	return "", "", false
}

func (a *ChiselAdapter) Remove(ctx context.Context, tunnelID string) error {
	a.mu.Lock()
	srv, hasServer := a.servers[tunnelID]
	cli, hasClient := a.clients[tunnelID]
	delete(a.servers, tunnelID)
	delete(a.clients, tunnelID)
	delete(a.tails, tunnelID)
	a.mu.Unlock()

	if hasServer {
		srv.cancel()
		_ = srv.srv.Close()
	}
	if hasClient {
		cli.cancel()
		_ = cli.cli.Close()
	}
	return nil
}

func (a *ChiselAdapter) Status(ctx context.Context, tunnelID string) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, hasServer := a.servers[tunnelID]
	_, hasClient := a.clients[tunnelID]
	return hasServer || hasClient, a.tails[tunnelID]
}

var _ Core = (*ChiselAdapter)(nil)
