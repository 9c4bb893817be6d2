package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tunnelforge/orchestrator/internal/core"
)

func TestClientApplyAndStatus(t *testing.T) {
	var gotApply applyRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/agent/tunnels/apply", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotApply)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/agent/tunnels/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Status{Running: true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New("node-1", srv.URL)

	spec := core.Spec{"ports": []any{float64(8080)}}
	if err := c.Apply(context.Background(), "t1", core.CoreGost, spec); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if gotApply.TunnelID != "t1" || gotApply.Core != core.CoreGost {
		t.Fatalf("server received unexpected apply request: %+v", gotApply)
	}

	st, err := c.TunnelStatus(context.Background(), "t1")
	if err != nil {
		t.Fatalf("TunnelStatus: %v", err)
	}
	if !st.Running {
		t.Fatal("expected Running=true")
	}
}

func TestClientErrorMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/agent/tunnels/remove", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "tunnel not found"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New("node-1", srv.URL)
	err := c.Remove(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*core.ErrTunnelNotFound); !ok {
		t.Fatalf("got %T, want *core.ErrTunnelNotFound", err)
	}
}

func TestClientUnreachable(t *testing.T) {
	c := New("node-1", "http://127.0.0.1:1")
	_, err := c.Health(context.Background())
	if err == nil {
		t.Fatal("expected error dialing an unreachable node")
	}
	if _, ok := err.(*core.NodeUnreachable); !ok {
		t.Fatalf("got %T, want *core.NodeUnreachable", err)
	}
}
