package derive

import (
	"reflect"
	"testing"
)

func TestParsePortsCommaString(t *testing.T) {
	got, err := ParsePorts("8080, 8081,8082", "127.0.0.1")
	if err != nil {
		t.Fatalf("ParsePorts: %v", err)
	}
	want := []Port{
		{Public: 8080, TargetHost: "127.0.0.1", TargetPort: 8080},
		{Public: 8081, TargetHost: "127.0.0.1", TargetPort: 8081},
		{Public: 8082, TargetHost: "127.0.0.1", TargetPort: 8082},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParsePorts = %+v, want %+v", got, want)
	}
}

func TestParsePortsMixedList(t *testing.T) {
	raw := []any{"8080", float64(8081), map[string]any{"local": float64(9000), "target_host": "10.0.0.5", "target_port": float64(9001)}}
	got, err := ParsePorts(raw, "127.0.0.1")
	if err != nil {
		t.Fatalf("ParsePorts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	if got[2] != (Port{Public: 9000, TargetHost: "10.0.0.5", TargetPort: 9001}) {
		t.Fatalf("got[2] = %+v", got[2])
	}
}

func TestParsePortsCoreSpecificForm(t *testing.T) {
	got, err := ParsePorts("8080=10.0.0.1:9090", "")
	if err != nil {
		t.Fatalf("ParsePorts: %v", err)
	}
	want := []Port{{Public: 8080, TargetHost: "10.0.0.1", TargetPort: 9090}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParsePorts = %+v, want %+v", got, want)
	}
}

func TestParsePortsSingleInt(t *testing.T) {
	got, err := ParsePorts(8080, "host")
	if err != nil {
		t.Fatalf("ParsePorts: %v", err)
	}
	want := []Port{{Public: 8080, TargetHost: "host", TargetPort: 8080}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParsePorts = %+v, want %+v", got, want)
	}
}

func TestParsePortsNil(t *testing.T) {
	got, err := ParsePorts(nil, "host")
	if err != nil {
		t.Fatalf("ParsePorts: %v", err)
	}
	if got != nil {
		t.Fatalf("ParsePorts(nil) = %+v, want nil", got)
	}
}

func TestBackhaulPortArgs(t *testing.T) {
	ports := []Port{{Public: 8080, TargetHost: "127.0.0.1", TargetPort: 8080}}
	got := BackhaulPortArgs(ports)
	want := []string{"8080=127.0.0.1:8080"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BackhaulPortArgs = %v, want %v", got, want)
	}
}
