package derive

import (
	"net/http"
	"net/url"
	"testing"
)

func TestResolvePanelHostPrefersSpecOverNodeMetadata(t *testing.T) {
	got, err := ResolvePanelHost("node-1", "node-metadata.example.com:8443", "spec.example.com:8443", nil)
	if err != nil {
		t.Fatalf("ResolvePanelHost: %v", err)
	}
	if got != "spec.example.com" {
		t.Fatalf("got %q, want spec.example.com", got)
	}
}

func TestResolvePanelHostFallsBackToNodeMetadata(t *testing.T) {
	got, err := ResolvePanelHost("node-1", "panel.example.com:8443", "", nil)
	if err != nil {
		t.Fatalf("ResolvePanelHost: %v", err)
	}
	if got != "panel.example.com" {
		t.Fatalf("got %q, want panel.example.com", got)
	}
}

func TestResolvePanelHostSkipsLoopback(t *testing.T) {
	r := &http.Request{Header: http.Header{"X-Forwarded-Host": []string{"203.0.113.9"}}, URL: &url.URL{}}
	got, err := ResolvePanelHost("node-1", "127.0.0.1", "", r)
	if err != nil {
		t.Fatalf("ResolvePanelHost: %v", err)
	}
	if got != "203.0.113.9" {
		t.Fatalf("got %q, want 203.0.113.9", got)
	}
}

func TestResolvePanelHostPrefersRequestHostOverForwardedHost(t *testing.T) {
	r := &http.Request{
		Header: http.Header{"X-Forwarded-Host": []string{"forwarded.example.com"}},
		URL:    &url.URL{Host: "direct.example.com"},
	}
	got, err := ResolvePanelHost("node-1", "", "", r)
	if err != nil {
		t.Fatalf("ResolvePanelHost: %v", err)
	}
	if got != "direct.example.com" {
		t.Fatalf("got %q, want direct.example.com", got)
	}
}

func TestResolvePanelHostFallsBackToRequestHost(t *testing.T) {
	r := &http.Request{Header: http.Header{}, URL: &url.URL{Host: "panel.internal:443"}}
	got, err := ResolvePanelHost("node-1", "", "", r)
	if err != nil {
		t.Fatalf("ResolvePanelHost: %v", err)
	}
	if got != "panel.internal" {
		t.Fatalf("got %q, want panel.internal", got)
	}
}

func TestResolvePanelHostUnresolved(t *testing.T) {
	_, err := ResolvePanelHost("node-1", "", "", nil)
	if err == nil {
		t.Fatal("expected error when no candidate resolves")
	}
	if _, ok := err.(*ErrPanelHostUnresolved); !ok {
		t.Fatalf("got error of type %T, want *ErrPanelHostUnresolved", err)
	}
}

func TestResolvePanelHostBracketsIPv6(t *testing.T) {
	got, err := ResolvePanelHost("node-1", "2001:db8::1", "", nil)
	if err != nil {
		t.Fatalf("ResolvePanelHost: %v", err)
	}
	if got != "[2001:db8::1]" {
		t.Fatalf("got %q, want bracketed IPv6", got)
	}
}
