package derive

import (
	"fmt"
	"strings"

	"github.com/tunnelforge/orchestrator/internal/core"
)

// Sides is the pair of derived, core-specific configuration bags for
// a reverse tunnel: Server runs on the iran node (the ingress,
// client-facing side), Client runs on the foreign node (the
// service-side endpoint that dials back to the iran node's control
// port).
type Sides struct {
	Server core.Spec
	Client core.Spec
}

// str reads a string field, treating int/float64 values as stringable
// since specs arrive from JSON and may carry numbers where a string
// is also accepted.
func str(s core.Spec, key string) string {
	switch v := s[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// checkControlPort enforces spec.md §4.2 rule 1: the derived control
// port must never collide with the panel's own API port.
func checkControlPort(controlPort, panelPort int) error {
	if panelPort != 0 && controlPort == panelPort {
		return core.NewValidationError("control port %d collides with the panel API port", controlPort)
	}
	return nil
}

func intOr(s core.Spec, def int, keys ...string) int {
	for _, k := range keys {
		switch v := s[k].(type) {
		case int:
			return v
		case float64:
			return int(v)
		case string:
			if v != "" {
				var n int
				if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
					return n
				}
			}
		}
	}
	return def
}

// DeriveRathole builds the server (iran node) and client (foreign
// node) configuration views for a rathole tunnel. panelPort is the
// panel's own API port; the derived control port must not collide
// with it.
func DeriveRathole(t *core.Tunnel, iranIP string, panelPort int) (*Sides, error) {
	if iranIP == "" {
		return nil, core.NewValidationError("iran node has no IP address")
	}
	spec := t.Spec.Clone()

	transport := str(spec, "transport")
	if transport == "" {
		transport = str(spec, "type")
	}
	if transport == "" {
		transport = "tcp"
	}
	token := str(spec, "token")
	if token == "" {
		return nil, core.NewValidationError("rathole requires a token")
	}

	ports, err := ParsePorts(spec["ports"], "")
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		if p := intOr(spec, 0, "remote_port", "listen_port"); p != 0 {
			ports = []Port{{Public: p}}
		}
	}
	if len(ports) == 0 {
		return nil, core.NewValidationError("rathole requires ports")
	}

	controlPort := intOr(spec, 0, "control_port")
	if controlPort == 0 {
		controlPort = RatholeControlPort(t.ID)
	}
	if err := checkControlPort(controlPort, panelPort); err != nil {
		return nil, err
	}

	server := spec.Clone()
	server["mode"] = "server"
	server["bind_addr"] = fmt.Sprintf("0.0.0.0:%d", controlPort)
	server["ports"] = PublicPorts(ports)
	server["transport"] = transport
	server["type"] = transport

	client := spec.Clone()
	client["mode"] = "client"
	client["transport"] = transport
	client["type"] = transport
	client["token"] = token
	client["ports"] = PublicPorts(ports)

	useTLS := truthy(server["websocket_tls"]) || truthy(server["tls"])
	proto := ""
	if strings.EqualFold(transport, "websocket") || strings.EqualFold(transport, "ws") {
		if useTLS {
			proto = "wss://"
		} else {
			proto = "ws://"
		}
	}
	client["remote_addr"] = fmt.Sprintf("%s%s:%d", proto, iranIP, controlPort)
	if useTLS {
		client["websocket_tls"] = true
	}

	return &Sides{Server: server, Client: client}, nil
}

// DeriveChisel builds the server and client views for a chisel
// tunnel. panelPort is the panel's own API port; the derived control
// port must not collide with it.
func DeriveChisel(t *core.Tunnel, iranIP string, panelPort int) (*Sides, error) {
	if iranIP == "" {
		return nil, core.NewValidationError("iran node has no IP address")
	}
	spec := t.Spec.Clone()

	ports, err := ParsePorts(spec["ports"], "")
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		if p := intOr(spec, 0, "listen_port", "remote_port"); p != 0 {
			ports = []Port{{Public: p}}
		}
	}
	if len(ports) == 0 {
		return nil, core.NewValidationError("chisel requires ports")
	}

	controlPort := intOr(spec, 0, "control_port")
	if controlPort == 0 {
		controlPort = ChiselControlPort(t.ID, ports[0].Public)
	}
	if err := checkControlPort(controlPort, panelPort); err != nil {
		return nil, err
	}

	server := spec.Clone()
	server["mode"] = "server"
	server["server_port"] = controlPort
	server["reverse_port"] = ports[0].Public

	client := spec.Clone()
	client["mode"] = "client"
	client["server_url"] = fmt.Sprintf("http://%s:%d", iranIP, controlPort)
	client["ports"] = PublicPorts(ports)

	if auth := str(spec, "auth"); auth != "" {
		server["auth"] = auth
		client["auth"] = auth
	}
	if fp := str(spec, "fingerprint"); fp != "" {
		server["fingerprint"] = fp
		client["fingerprint"] = fp
	}

	return &Sides{Server: server, Client: client}, nil
}

// DeriveFRP builds the frps (server) and frpc (client) views for an
// frp tunnel. The frpc view dials iranIP at the derived bind port;
// ResolvePanelHost is not consulted, so no panel-host substitution is
// applied to that address. panelPort is the
// panel's own API port; the derived bind port must not collide with
// it.
func DeriveFRP(t *core.Tunnel, iranIP string, panelPort int) (*Sides, error) {
	if iranIP == "" {
		return nil, core.NewValidationError("iran node has no IP address")
	}
	spec := t.Spec.Clone()

	bindPort := intOr(spec, 0, "bind_port")
	if bindPort == 0 {
		bindPort = FRPControlPort(t.ID)
	}
	if err := checkControlPort(bindPort, panelPort); err != nil {
		return nil, err
	}
	token := str(spec, "token")

	server := spec.Clone()
	server["bind_port"] = bindPort
	if token != "" {
		server["token"] = token
	}

	client := spec.Clone()
	client["server_addr"] = iranIP
	client["server_port"] = bindPort
	if token != "" {
		client["token"] = token
	}

	tunnelType := strings.ToLower(t.Type)
	if tunnelType != "tcp" && tunnelType != "udp" {
		tunnelType = "tcp"
	}
	client["type"] = tunnelType

	localIP := str(client, "local_ip")
	if localIP == "" {
		localIP = iranIP
	}

	ports, err := ParsePorts(spec["ports"], localIP)
	if err != nil {
		return nil, err
	}
	if len(ports) > 0 {
		entries := make([]map[string]any, 0, len(ports))
		for _, p := range ports {
			entries = append(entries, map[string]any{"local": p.Public, "remote": p.Public})
		}
		client["ports"] = entries
	} else {
		localPort := intOr(client, 0, "local_port")
		if localPort == 0 {
			localPort = intOr(spec, bindPort, "listen_port", "remote_port")
		}
		client["local_ip"] = localIP
		client["local_port"] = localPort
		if _, ok := client["remote_port"]; !ok {
			client["remote_port"] = intOr(spec, bindPort, "remote_port", "listen_port")
		}
	}

	return &Sides{Server: server, Client: client}, nil
}

// DeriveBackhaul builds the server and client views for a backhaul
// tunnel. panelPort is the panel's own API port; the derived control
// port must not collide with it.
func DeriveBackhaul(t *core.Tunnel, iranIP string, panelPort int) (*Sides, error) {
	if iranIP == "" {
		return nil, core.NewValidationError("iran node has no IP address")
	}
	spec := t.Spec.Clone()

	transport := str(spec, "transport")
	if transport == "" {
		transport = str(spec, "type")
	}
	if transport == "" {
		transport = "tcp"
	}

	controlPort := intOr(spec, 0, "control_port", "listen_port")
	if controlPort == 0 {
		controlPort = BackhaulControlPort(t.ID)
	}
	if err := checkControlPort(controlPort, panelPort); err != nil {
		return nil, err
	}
	targetHost := str(spec, "target_host")
	if targetHost == "" {
		targetHost = "127.0.0.1"
	}
	token := str(spec, "token")

	ports, err := ParsePorts(spec["ports"], targetHost)
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		publicPort := intOr(spec, 0, "public_port", "remote_port", "listen_port")
		if publicPort == 0 {
			return nil, core.NewValidationError("backhaul requires a ports array or public_port/remote_port")
		}
		targetPort := intOr(spec, publicPort, "target_port")
		ports = []Port{{Public: publicPort, TargetHost: targetHost, TargetPort: targetPort}}
	}

	bindIP := str(spec, "bind_ip")
	if bindIP == "" {
		bindIP = str(spec, "listen_ip")
	}
	if bindIP == "" {
		bindIP = "0.0.0.0"
	}

	server := spec.Clone()
	server["bind_addr"] = fmt.Sprintf("%s:%d", bindIP, controlPort)
	server["transport"] = transport
	server["type"] = transport
	server["ports"] = BackhaulPortArgs(ports)
	if token != "" {
		server["token"] = token
	}

	client := spec.Clone()
	client["remote_addr"] = fmt.Sprintf("%s:%d", iranIP, controlPort)
	client["transport"] = transport
	client["type"] = transport
	if token != "" {
		client["token"] = token
	}

	return &Sides{Server: server, Client: client}, nil
}

// DeriveGost builds the single-sided argv spec for a gost forwarder,
// which runs either on the panel host itself or on a single iran node
// — there is no reverse control channel to derive.
func DeriveGost(t *core.Tunnel) (core.Spec, error) {
	spec := t.Spec.Clone()
	ports, err := ParsePorts(spec["ports"], str(spec, "target_host"))
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, core.NewValidationError("gost requires at least one forwarded port")
	}
	spec["ports"] = ports
	return spec, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != "" && x != "false" && x != "0"
	case nil:
		return false
	default:
		return true
	}
}
