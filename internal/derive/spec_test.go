package derive

import (
	"testing"

	"github.com/tunnelforge/orchestrator/internal/core"
)

func TestDeriveRatholeRejectsControlPortCollidingWithPanel(t *testing.T) {
	tun := &core.Tunnel{ID: "t1", Spec: core.Spec{"control_port": float64(8000), "ports": []any{float64(8080)}, "token": "secret"}}
	_, err := DeriveRathole(tun, "10.0.0.1", 8000)
	if err == nil {
		t.Fatal("expected validation error when control port equals panel API port")
	}
	if _, ok := err.(*core.OpError); !ok {
		t.Fatalf("got %T, want *core.OpError", err)
	}
}

func TestDeriveRatholeAllowsDistinctControlPort(t *testing.T) {
	tun := &core.Tunnel{ID: "t1", Spec: core.Spec{"control_port": float64(23456), "ports": []any{float64(8080)}, "token": "secret"}}
	if _, err := DeriveRathole(tun, "10.0.0.1", 8000); err != nil {
		t.Fatalf("DeriveRathole: %v", err)
	}
}

func TestDeriveChiselRejectsControlPortCollidingWithPanel(t *testing.T) {
	tun := &core.Tunnel{ID: "t1", Spec: core.Spec{"control_port": float64(8000), "ports": []any{float64(8080)}}}
	_, err := DeriveChisel(tun, "10.0.0.1", 8000)
	if err == nil {
		t.Fatal("expected validation error when control port equals panel API port")
	}
}

func TestDeriveFRPRejectsBindPortCollidingWithPanel(t *testing.T) {
	tun := &core.Tunnel{ID: "t1", Spec: core.Spec{"bind_port": float64(8000), "ports": []any{float64(8080)}}}
	_, err := DeriveFRP(tun, "10.0.0.1", 8000)
	if err == nil {
		t.Fatal("expected validation error when bind port equals panel API port")
	}
}

func TestDeriveBackhaulRejectsControlPortCollidingWithPanel(t *testing.T) {
	tun := &core.Tunnel{ID: "t1", Spec: core.Spec{"control_port": float64(8000), "ports": []any{float64(8080)}}}
	_, err := DeriveBackhaul(tun, "10.0.0.1", 8000)
	if err == nil {
		t.Fatal("expected validation error when control port equals panel API port")
	}
}
