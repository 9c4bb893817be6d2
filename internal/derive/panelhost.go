package derive

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
)

// ErrPanelHostUnresolved is returned when every fallback in the
// resolution chain is empty, loopback, or unspecified.
type ErrPanelHostUnresolved struct {
	NodeID string
}

func (e *ErrPanelHostUnresolved) Error() string {
	return fmt.Sprintf("cannot determine panel address for node %s: set node metadata panel_address, "+
		"pass panel_host in the tunnel spec, forward X-Forwarded-Host, or set PANEL_PUBLIC_IP/PANEL_IP", e.NodeID)
}

// ResolvePanelHost walks the fallback chain a node must use to dial
// back to the panel for a server-side tunnel endpoint: an explicit
// panel_host in the tunnel spec, then the node's registered
// panel_address, then the incoming request's own Host, then the
// request's X-Forwarded-Host, then the PANEL_PUBLIC_IP/PANEL_IP
// environment variables. Loopback and unspecified addresses are
// rejected at every step since they are never reachable from a
// remote node.
func ResolvePanelHost(nodeID, nodePanelAddress, specPanelHost string, r *http.Request) (string, error) {
	candidates := []string{
		hostOnly(specPanelHost),
		hostOnly(nodePanelAddress),
	}
	if r != nil {
		if r.URL != nil && r.URL.Hostname() != "" {
			candidates = append(candidates, r.URL.Hostname())
		} else if r.Host != "" {
			candidates = append(candidates, hostOnly(r.Host))
		}
		if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
			candidates = append(candidates, hostOnly(fwd))
		}
	}
	candidates = append(candidates, os.Getenv("PANEL_PUBLIC_IP"), os.Getenv("PANEL_IP"))

	for _, c := range candidates {
		if isUsableHost(c) {
			return formatHost(c), nil
		}
	}
	return "", &ErrPanelHostUnresolved{NodeID: nodeID}
}

func hostOnly(addr string) string {
	if addr == "" {
		return ""
	}
	if idx := strings.Index(addr, "://"); idx >= 0 {
		addr = addr[idx+3:]
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

func isUsableHost(h string) bool {
	if h == "" {
		return false
	}
	switch h {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0", "::":
		return false
	}
	if ip := net.ParseIP(h); ip != nil && (ip.IsLoopback() || ip.IsUnspecified()) {
		return false
	}
	return true
}

// formatHost brackets a bare IPv6 literal so it composes safely into
// a host:port string.
func formatHost(h string) string {
	if ip := net.ParseIP(h); ip != nil && ip.To4() == nil {
		return "[" + h + "]"
	}
	return h
}
