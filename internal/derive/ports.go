package derive

import (
	"fmt"
	"strconv"
	"strings"
)

// Port is one normalized forwarded port: a public-facing port paired
// with the destination it forwards to. TargetHost defaults to the
// tunnel's general target_host when empty.
type Port struct {
	Public     int
	TargetHost string
	TargetPort int
}

// ParsePorts normalizes the "ports" field of a tunnel spec, which
// arrives from the API in any of several shapes: a single int, a
// comma-separated string, a list of ints/strings, or a list of
// {local,target_host,target_port} maps. defaultTargetHost fills
// TargetHost/TargetPort when a ports entry only names the public port.
func ParsePorts(raw any, defaultTargetHost string) ([]Port, error) {
	if raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []Port:
		return v, nil
	case string:
		return parsePortString(v, defaultTargetHost)
	case []any:
		return parsePortList(v, defaultTargetHost)
	case []int:
		out := make([]Port, 0, len(v))
		for _, p := range v {
			out = append(out, Port{Public: p, TargetHost: defaultTargetHost, TargetPort: p})
		}
		return out, nil
	case int:
		return []Port{{Public: v, TargetHost: defaultTargetHost, TargetPort: v}}, nil
	case float64:
		p := int(v)
		return []Port{{Public: p, TargetHost: defaultTargetHost, TargetPort: p}}, nil
	default:
		return nil, fmt.Errorf("derive: unsupported ports value of type %T", raw)
	}
}

func parsePortString(s string, defaultTargetHost string) ([]Port, error) {
	var out []Port
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := parsePortEntry(field, defaultTargetHost)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parsePortList(items []any, defaultTargetHost string) ([]Port, error) {
	out := make([]Port, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			p, err := parsePortEntry(v, defaultTargetHost)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case int:
			out = append(out, Port{Public: v, TargetHost: defaultTargetHost, TargetPort: v})
		case float64:
			p := int(v)
			out = append(out, Port{Public: p, TargetHost: defaultTargetHost, TargetPort: p})
		case map[string]any:
			p, err := parsePortMap(v, defaultTargetHost)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		default:
			return nil, fmt.Errorf("derive: unsupported ports entry of type %T", item)
		}
	}
	return out, nil
}

// parsePortEntry accepts "8080", or the core-specific "8080=host:9090"
// form used by backhaul.
func parsePortEntry(field string, defaultTargetHost string) (Port, error) {
	if idx := strings.IndexByte(field, '='); idx >= 0 {
		pub, target := field[:idx], field[idx+1:]
		public, err := strconv.Atoi(strings.TrimSpace(pub))
		if err != nil {
			return Port{}, fmt.Errorf("derive: invalid public port %q: %w", pub, err)
		}
		host, portStr, err := splitHostPort(target)
		if err != nil {
			return Port{}, err
		}
		targetPort := public
		if portStr != "" {
			targetPort, err = strconv.Atoi(portStr)
			if err != nil {
				return Port{}, fmt.Errorf("derive: invalid target port %q: %w", portStr, err)
			}
		}
		return Port{Public: public, TargetHost: host, TargetPort: targetPort}, nil
	}
	public, err := strconv.Atoi(field)
	if err != nil {
		return Port{}, fmt.Errorf("derive: invalid port %q: %w", field, err)
	}
	return Port{Public: public, TargetHost: defaultTargetHost, TargetPort: public}, nil
}

func parsePortMap(m map[string]any, defaultTargetHost string) (Port, error) {
	local := firstIntField(m, "local", "listen_port", "public_port", "remote")
	if local == 0 {
		return Port{}, fmt.Errorf("derive: ports entry missing local/listen_port/public_port: %v", m)
	}
	host := defaultTargetHost
	if h, ok := m["target_host"].(string); ok && h != "" {
		host = h
	}
	target := local
	if t := firstIntField(m, "target_port", "remote_port"); t != 0 {
		target = t
	}
	return Port{Public: local, TargetHost: host, TargetPort: target}, nil
}

func firstIntField(m map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case int:
			return v
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 0
}

func splitHostPort(s string) (host, port string, err error) {
	if idx := strings.LastIndexByte(s, ':'); idx >= 0 {
		return s[:idx], s[idx+1:], nil
	}
	return s, "", nil
}

// BackhaulPortArgs renders the normalized ports as backhaul's
// "public=target_host:target_port" config strings.
func BackhaulPortArgs(ports []Port) []string {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		out = append(out, fmt.Sprintf("%d=%s:%d", p.Public, p.TargetHost, p.TargetPort))
	}
	return out
}

// PublicPorts returns the bare list of public-facing port numbers.
func PublicPorts(ports []Port) []int {
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		out = append(out, p.Public)
	}
	return out
}
