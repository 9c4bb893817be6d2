package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tunnelforge/orchestrator/internal/core"
	"github.com/tunnelforge/orchestrator/internal/rpcclient"
	"github.com/tunnelforge/orchestrator/internal/store"
)

// fakeStore is a minimal in-memory store.Store for panel tests.
type fakeStore struct {
	mu      sync.Mutex
	nodes    map[string]*core.Node
	tunnels  map[string]*core.Tunnel
	usage    []*core.Usage
	settings map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:   make(map[string]*core.Node),
		tunnels: make(map[string]*core.Tunnel),
	}
}

func (f *fakeStore) PutNode(ctx context.Context, n *core.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *n
	f.nodes[n.ID] = &cp
	return nil
}

func (f *fakeStore) GetNode(ctx context.Context, id string) (*core.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return nil, &core.ErrNodeNotFound{NodeID: id}
	}
	cp := *n
	return &cp, nil
}

func (f *fakeStore) ListNodes(ctx context.Context) ([]*core.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*core.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) DeleteNode(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, id)
	return nil
}

func (f *fakeStore) PutTunnel(ctx context.Context, t *core.Tunnel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tunnels[t.ID] = &cp
	return nil
}

func (f *fakeStore) GetTunnel(ctx context.Context, id string) (*core.Tunnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tunnels[id]
	if !ok {
		return nil, &core.ErrTunnelNotFound{TunnelID: id}
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListTunnels(ctx context.Context) ([]*core.Tunnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*core.Tunnel, 0, len(f.tunnels))
	for _, t := range f.tunnels {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) ListActiveTunnels(ctx context.Context) ([]*core.Tunnel, error) {
	all, _ := f.ListTunnels(ctx)
	out := make([]*core.Tunnel, 0, len(all))
	for _, t := range all {
		if t.Status == core.TunnelActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTunnelsByNode(ctx context.Context, nodeID string) ([]*core.Tunnel, error) {
	all, _ := f.ListTunnels(ctx)
	out := make([]*core.Tunnel, 0)
	for _, t := range all {
		if t.NodeID == nodeID || t.IranNodeID == nodeID || t.ForeignNodeID == nodeID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteTunnel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tunnels, id)
	return nil
}

func (f *fakeStore) AppendUsage(ctx context.Context, u *core.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = append(f.usage, u)
	return nil
}

func (f *fakeStore) GetSetting(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.settings[key]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (f *fakeStore) PutSetting(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settings == nil {
		f.settings = make(map[string][]byte)
	}
	f.settings[key] = value
	return nil
}

func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)

// fakeAgentServer runs an httptest server speaking the same wire
// protocol as internal/agent's Mount, so the panel can drive it
// through rpcclient exactly as it would a real node.
func fakeAgentServer(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	applied := make(map[string]bool)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent/tunnels/apply", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TunnelID string `json:"tunnel_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		applied[req.TunnelID] = true
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /agent/tunnels/remove", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TunnelID string `json:"tunnel_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		delete(applied, req.TunnelID)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /agent/tunnels/status", func(w http.ResponseWriter, r *http.Request) {
		tunnelID := r.URL.Query().Get("tunnel_id")
		mu.Lock()
		running := applied[tunnelID]
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rpcclient.Status{Running: running})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dialerFor(servers map[string]*httptest.Server) NodeDialer {
	return func(n *core.Node) *rpcclient.Client {
		srv, ok := servers[n.ID]
		if !ok {
			return rpcclient.New(n.ID, "http://127.0.0.1:1")
		}
		return rpcclient.New(n.ID, srv.URL)
	}
}

func TestCreateTunnelTwoSidedAppliesBothNodes(t *testing.T) {
	iranSrv := fakeAgentServer(t)
	foreignSrv := fakeAgentServer(t)

	st := newFakeStore()
	iran := &core.Node{ID: "iran-1", Name: "iran", Metadata: map[string]string{core.MetaIPAddress: "10.0.0.1", core.MetaRole: string(core.RoleIran)}}
	foreign := &core.Node{ID: "foreign-1", Name: "foreign", Metadata: map[string]string{core.MetaIPAddress: "10.0.0.2", core.MetaRole: string(core.RoleForeign)}}
	_, _ = st.PutNode(context.Background(), iran), st.PutNode(context.Background(), foreign)

	p := New(st, nil, nil, dialerFor(map[string]*httptest.Server{"iran-1": iranSrv, "foreign-1": foreignSrv}), 0, "", nil)

	tun, err := p.CreateTunnel(context.Background(), core.CreateIntent{
		Name:          "t1",
		Core:          core.CoreRathole,
		IranNodeID:    iran.ID,
		ForeignNodeID: foreign.ID,
		Spec:          core.Spec{"ports": []any{float64(8080)}, "token": "secret"},
	})
	if err != nil {
		t.Fatalf("CreateTunnel: %v", err)
	}
	if tun.Status != core.TunnelActive {
		t.Fatalf("expected tunnel active, got %s (err=%s)", tun.Status, tun.ErrorMessage)
	}

	st2, err := p.GetStatus(context.Background(), tun.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st2.IranStatus == nil || !st2.IranStatus.Running {
		t.Fatal("expected iran side reported running")
	}
	if st2.ForeignStatus == nil || !st2.ForeignStatus.Running {
		t.Fatal("expected foreign side reported running")
	}
}

func TestUpdateTunnelNameOnlyDoesNotReapply(t *testing.T) {
	var applyCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/agent/tunnels/apply" {
			atomic.AddInt32(&applyCount, 1)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	st := newFakeStore()
	node := &core.Node{ID: "node-1", Name: "node-1", Metadata: map[string]string{core.MetaIPAddress: "10.0.0.1"}}
	_ = st.PutNode(context.Background(), node)

	p := New(st, nil, nil, dialerFor(map[string]*httptest.Server{"node-1": srv}), 0, "", nil)

	tun, err := p.CreateTunnel(context.Background(), core.CreateIntent{
		Name:   "t1",
		Core:   core.CoreGost,
		NodeID: "node-1",
		Spec:   core.Spec{"ports": []any{float64(8080)}},
	})
	if err != nil {
		t.Fatalf("CreateTunnel: %v", err)
	}

	before := atomic.LoadInt32(&applyCount)
	newName := "t1-renamed"
	if _, err := p.UpdateTunnel(context.Background(), tun.ID, core.UpdatePatch{Name: &newName}); err != nil {
		t.Fatalf("UpdateTunnel: %v", err)
	}
	after := atomic.LoadInt32(&applyCount)
	if after != before {
		t.Fatalf("name-only patch reapplied: apply count went from %d to %d", before, after)
	}

	got, err := p.GetTunnel(context.Background(), tun.ID)
	if err != nil {
		t.Fatalf("GetTunnel: %v", err)
	}
	if got.Name != newName {
		t.Fatalf("expected name updated to %q, got %q", newName, got.Name)
	}
}

func TestCreateTunnelMissingNodeValidation(t *testing.T) {
	st := newFakeStore()
	p := New(st, nil, nil, dialerFor(nil), 0, "", nil)

	_, err := p.CreateTunnel(context.Background(), core.CreateIntent{
		Name: "t1",
		Core: core.CoreRathole,
	})
	if err == nil {
		t.Fatal("expected validation error for missing node bindings")
	}
	if _, ok := err.(*core.OpError); !ok {
		t.Fatalf("got %T, want *core.OpError", err)
	}
}

func TestCreateTunnelRejectsRoleMismatch(t *testing.T) {
	st := newFakeStore()
	iran := &core.Node{ID: "iran-1", Name: "iran", Metadata: map[string]string{core.MetaIPAddress: "10.0.0.1", core.MetaRole: string(core.RoleForeign)}}
	foreign := &core.Node{ID: "foreign-1", Name: "foreign", Metadata: map[string]string{core.MetaIPAddress: "10.0.0.2", core.MetaRole: string(core.RoleForeign)}}
	_, _ = st.PutNode(context.Background(), iran), st.PutNode(context.Background(), foreign)

	p := New(st, nil, nil, dialerFor(nil), 0, "", nil)

	_, err := p.CreateTunnel(context.Background(), core.CreateIntent{
		Name:          "t1",
		Core:          core.CoreRathole,
		IranNodeID:    iran.ID,
		ForeignNodeID: foreign.ID,
		Spec:          core.Spec{"ports": []any{float64(8080)}, "token": "secret"},
	})
	if err == nil {
		t.Fatal("expected validation error when iran node's role does not match")
	}
	if _, ok := err.(*core.OpError); !ok {
		t.Fatalf("got %T, want *core.OpError", err)
	}
}

func TestRegisterNodeRejectsAgentVersionBelowMinimum(t *testing.T) {
	st := newFakeStore()
	p := New(st, nil, nil, dialerFor(nil), 0, "v0.5.0", nil)

	_, err := p.RegisterNode(context.Background(), &core.Node{
		Name:     "old-node",
		Metadata: map[string]string{core.MetaAgentVersion: "v0.4.2"},
	})
	if err == nil {
		t.Fatal("expected validation error for agent_version below the configured minimum")
	}
	if _, ok := err.(*core.OpError); !ok {
		t.Fatalf("got %T, want *core.OpError", err)
	}
}

func TestRegisterNodeAcceptsAgentVersionAtOrAboveMinimum(t *testing.T) {
	st := newFakeStore()
	p := New(st, nil, nil, dialerFor(nil), 0, "v0.5.0", nil)

	n, err := p.RegisterNode(context.Background(), &core.Node{
		Name:     "new-node",
		Metadata: map[string]string{core.MetaAgentVersion: "v0.5.0"},
	})
	if err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}
	if n.ID == "" {
		t.Fatal("expected RegisterNode to assign an ID")
	}
}

func TestDeleteNodeRefusesWhenTunnelsExist(t *testing.T) {
	st := newFakeStore()
	node := &core.Node{ID: "n1", Name: "n1"}
	_ = st.PutNode(context.Background(), node)
	_ = st.PutTunnel(context.Background(), &core.Tunnel{ID: "t1", NodeID: "n1", Core: core.CoreGost})

	p := New(st, nil, nil, dialerFor(nil), 0, "", nil)
	err := p.DeleteNode(context.Background(), "n1")
	if err == nil {
		t.Fatal("expected conflict deleting node with active tunnels")
	}
	if e, ok := err.(*core.OpError); !ok || e.Kind != core.KindConflict {
		t.Fatalf("got %v, want KindConflict", err)
	}
}

func TestPushUsageMonotoneAndQuota(t *testing.T) {
	iranSrv := fakeAgentServer(t)
	foreignSrv := fakeAgentServer(t)
	st := newFakeStore()
	iran := &core.Node{ID: "iran-1", Metadata: map[string]string{core.MetaIPAddress: "10.0.0.1"}}
	foreign := &core.Node{ID: "foreign-1", Metadata: map[string]string{core.MetaIPAddress: "10.0.0.2"}}
	_ = st.PutNode(context.Background(), iran)
	_ = st.PutNode(context.Background(), foreign)
	_ = st.PutTunnel(context.Background(), &core.Tunnel{
		ID: "t1", Core: core.CoreRathole, IranNodeID: "iran-1", ForeignNodeID: "foreign-1",
		Status: core.TunnelActive, QuotaMB: 1,
	})

	p := New(st, nil, nil, dialerFor(map[string]*httptest.Server{"iran-1": iranSrv, "foreign-1": foreignSrv}), 0, "", nil)

	// First sample: 0.5MB.
	if err := p.PushUsage(context.Background(), "t1", "foreign-1", 512*1024); err != nil {
		t.Fatalf("PushUsage: %v", err)
	}
	tun, _ := st.GetTunnel(context.Background(), "t1")
	if tun.UsedMB < 0.49 || tun.UsedMB > 0.51 {
		t.Fatalf("expected ~0.5MB used, got %f", tun.UsedMB)
	}

	// A smaller later sample must not regress usage (invariant I4).
	if err := p.PushUsage(context.Background(), "t1", "foreign-1", 100); err != nil {
		t.Fatalf("PushUsage: %v", err)
	}
	tun, _ = st.GetTunnel(context.Background(), "t1")
	if tun.UsedMB < 0.49 {
		t.Fatalf("usage regressed: %f", tun.UsedMB)
	}

	// Exceed the 1MB quota.
	if err := p.PushUsage(context.Background(), "t1", "foreign-1", 2*1024*1024); err != nil {
		t.Fatalf("PushUsage: %v", err)
	}
	tun, _ = st.GetTunnel(context.Background(), "t1")
	if tun.Status != core.TunnelError || tun.ErrorMessage != "quota exceeded" {
		t.Fatalf("expected quota-exceeded error status, got %+v", tun)
	}

	// The engine is not torn down by PushUsage itself: only the next
	// reapply refuses to restart it (spec.md §7).
	if err := p.ApplyTunnel(context.Background(), "t1"); err == nil {
		t.Fatal("expected ApplyTunnel to refuse restarting a quota-exceeded tunnel")
	}
	tun, _ = st.GetTunnel(context.Background(), "t1")
	if tun.Status != core.TunnelError || tun.ErrorMessage != "quota exceeded" {
		t.Fatalf("expected tunnel to remain in quota-exceeded error state, got %+v", tun)
	}
}

func TestReapplyAllSkipsDeletedNothing(t *testing.T) {
	iranSrv := fakeAgentServer(t)
	foreignSrv := fakeAgentServer(t)
	st := newFakeStore()
	iran := &core.Node{ID: "iran-1", Metadata: map[string]string{core.MetaIPAddress: "10.0.0.1"}}
	foreign := &core.Node{ID: "foreign-1", Metadata: map[string]string{core.MetaIPAddress: "10.0.0.2"}}
	_ = st.PutNode(context.Background(), iran)
	_ = st.PutNode(context.Background(), foreign)
	_ = st.PutTunnel(context.Background(), &core.Tunnel{
		ID: "t1", Core: core.CoreRathole, IranNodeID: "iran-1", ForeignNodeID: "foreign-1",
		Status: core.TunnelError, Spec: core.Spec{"ports": []any{float64(9090)}, "token": "secret"},
	})

	p := New(st, nil, nil, dialerFor(map[string]*httptest.Server{"iran-1": iranSrv, "foreign-1": foreignSrv}), 0, "", nil)
	if err := p.ReapplyAll(context.Background()); err != nil {
		t.Fatalf("ReapplyAll: %v", err)
	}
	tun, _ := st.GetTunnel(context.Background(), "t1")
	if tun.Status != core.TunnelActive {
		t.Fatalf("expected tunnel converged to active, got %s", tun.Status)
	}
}
