package restore

import (
	"context"
	"sync"
	"testing"

	"github.com/tunnelforge/orchestrator/internal/adapter"
	"github.com/tunnelforge/orchestrator/internal/core"
	"github.com/tunnelforge/orchestrator/internal/panel"
	"github.com/tunnelforge/orchestrator/internal/store"
)

type fakeStore struct {
	mu      sync.Mutex
	tunnels map[string]*core.Tunnel
}

func newFakeStore(tunnels ...*core.Tunnel) *fakeStore {
	f := &fakeStore{tunnels: make(map[string]*core.Tunnel)}
	for _, t := range tunnels {
		f.tunnels[t.ID] = t
	}
	return f
}

func (f *fakeStore) PutNode(ctx context.Context, n *core.Node) error { return nil }
func (f *fakeStore) GetNode(ctx context.Context, id string) (*core.Node, error) {
	return nil, &core.ErrNodeNotFound{NodeID: id}
}
func (f *fakeStore) ListNodes(ctx context.Context) ([]*core.Node, error) { return nil, nil }
func (f *fakeStore) DeleteNode(ctx context.Context, id string) error     { return nil }

func (f *fakeStore) PutTunnel(ctx context.Context, t *core.Tunnel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tunnels[t.ID] = t
	return nil
}
func (f *fakeStore) GetTunnel(ctx context.Context, id string) (*core.Tunnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tunnels[id]
	if !ok {
		return nil, &core.ErrTunnelNotFound{TunnelID: id}
	}
	return t, nil
}
func (f *fakeStore) ListTunnels(ctx context.Context) ([]*core.Tunnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*core.Tunnel, 0, len(f.tunnels))
	for _, t := range f.tunnels {
		out = append(out, t)
	}
	return out, nil
}
func (f *fakeStore) ListActiveTunnels(ctx context.Context) ([]*core.Tunnel, error) { return nil, nil }
func (f *fakeStore) ListTunnelsByNode(ctx context.Context, nodeID string) ([]*core.Tunnel, error) {
	return nil, nil
}
func (f *fakeStore) DeleteTunnel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tunnels, id)
	return nil
}
func (f *fakeStore) AppendUsage(ctx context.Context, u *core.Usage) error { return nil }
func (f *fakeStore) GetSetting(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}
func (f *fakeStore) PutSetting(ctx context.Context, key string, value []byte) error { return nil }
func (f *fakeStore) Close() error                                                  { return nil }

var _ store.Store = (*fakeStore)(nil)

type recordingCore struct {
	applied []string
}

func (c *recordingCore) Name() core.Core { return core.CoreGost }
func (c *recordingCore) Apply(ctx context.Context, tunnelID string, spec core.Spec) error {
	c.applied = append(c.applied, tunnelID)
	return nil
}
func (c *recordingCore) Remove(ctx context.Context, tunnelID string) error { return nil }
func (c *recordingCore) Status(ctx context.Context, tunnelID string) (bool, string) {
	for _, id := range c.applied {
		if id == tunnelID {
			return true, ""
		}
	}
	return false, ""
}

func TestRunRestoresPanelLocalForward(t *testing.T) {
	localForward := &core.Tunnel{
		ID: "forward-1", Core: core.CoreGost, Status: core.TunnelPending,
		Spec: core.Spec{"ports": []any{float64(9000)}, "target_host": "127.0.0.1"},
	}
	st := newFakeStore(localForward)
	rc := &recordingCore{}
	registry := adapter.NewRegistryWithAdapters(rc)
	p := panel.New(st, registry, nil, nil, 0, "", nil)

	r := New(p, st, registry, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := st.GetTunnel(context.Background(), "forward-1")
	if err != nil {
		t.Fatalf("GetTunnel: %v", err)
	}
	if got.Status != core.TunnelActive {
		t.Fatalf("expected tunnel active after restoration, got %s (%s)", got.Status, got.ErrorMessage)
	}
}

func TestRunSkipsStoppedTunnels(t *testing.T) {
	stopped := &core.Tunnel{ID: "t1", Core: core.CoreGost, Status: "stopped"}
	st := newFakeStore(stopped)
	registry := adapter.NewRegistryWithAdapters(&recordingCore{})
	p := panel.New(st, registry, nil, nil, 0, "", nil)

	r := New(p, st, registry, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := st.GetTunnel(context.Background(), "t1")
	if got.Status != "stopped" {
		t.Fatalf("expected stopped tunnel left untouched, got %s", got.Status)
	}
}
