package adapter

import (
	"strings"
	"testing"

	"github.com/tunnelforge/orchestrator/internal/core"
)

func TestIntSlice(t *testing.T) {
	got := intSlice([]any{float64(8080), 8081, "not-an-int"})
	want := []int{8080, 8081}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("intSlice = %v, want %v", got, want)
	}
}

func TestStringSlice(t *testing.T) {
	got := stringSlice([]any{"8080=127.0.0.1:8080", 5})
	if len(got) != 1 || got[0] != "8080=127.0.0.1:8080" {
		t.Fatalf("stringSlice = %v", got)
	}
}

func TestTruncateRespectsMaxLogTail(t *testing.T) {
	long := strings.Repeat("x", core.MaxLogTail*2)
	got := truncate(long)
	if len(got) != core.MaxLogTail {
		t.Fatalf("truncate len = %d, want %d", len(got), core.MaxLogTail)
	}
}

func TestSplitAuth(t *testing.T) {
	user, pass, ok := splitAuth("alice:s3cret")
	if !ok || user != "alice" || pass != "s3cret" {
		t.Fatalf("splitAuth = %q, %q, %v", user, pass, ok)
	}
	if _, _, ok := splitAuth("no-colon"); ok {
		t.Fatal("expected ok=false for auth string with no colon")
	}
}

func TestBuildRemotes(t *testing.T) {
	spec := core.Spec{"ports": []any{float64(8080), float64(8081)}, "target_host": "10.0.0.5"}
	got := buildRemotes(spec)
	want := []string{"R:8080:10.0.0.5:8080", "R:8081:10.0.0.5:8081"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("buildRemotes = %v, want %v", got, want)
	}
}

func TestRegistryGetUnknownCore(t *testing.T) {
	r := NewRegistry(nil, t.TempDir(), nil)
	if _, err := r.Get(core.Core("nonexistent")); err == nil {
		t.Fatal("expected error for unknown core")
	}
}
