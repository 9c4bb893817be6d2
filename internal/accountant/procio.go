package accountant

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ProcessIOAccountant measures a tunnel's traffic from its engine
// process's cumulative read/write byte counters under /proc/<pid>/io.
// It is the Accountant that New returns on non-Linux builds — coarser
// since it counts all process I/O rather than only forwarded-port
// traffic, but still cumulative and monotonic.
type ProcessIOAccountant struct {
	mu   sync.Mutex
	pids map[string]int
}

// NewProcessIOAccountant returns a process-I/O-based Accountant.
func NewProcessIOAccountant() *ProcessIOAccountant {
	return &ProcessIOAccountant{pids: make(map[string]int)}
}

// Track registers the PID backing tunnelID's engine process. Install
// is a no-op for this accountant beyond bookkeeping: there is no
// kernel rule to install, ports are unused.
func (a *ProcessIOAccountant) Track(tunnelID string, pid int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pids[tunnelID] = pid
}

func (a *ProcessIOAccountant) Install(ctx context.Context, tunnelID string, ports []int) error {
	return nil
}

func (a *ProcessIOAccountant) Remove(ctx context.Context, tunnelID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pids, tunnelID)
	return nil
}

func (a *ProcessIOAccountant) Read(ctx context.Context, tunnelID string) (Sample, error) {
	a.mu.Lock()
	pid, ok := a.pids[tunnelID]
	a.mu.Unlock()
	if !ok {
		return Sample{}, fmt.Errorf("accountant: no tracked pid for tunnel %s", tunnelID)
	}

	readBytes, writeBytes, err := readProcIO(pid)
	if err != nil {
		return Sample{}, err
	}
	// Process I/O does not distinguish direction; attribute all of it
	// to ingress so Sample.MB() still reflects total traffic.
	return Sample{IngressBytes: readBytes + writeBytes}, nil
}

func readProcIO(pid int) (readBytes, writeBytes int64, err error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/io", pid))
	if err != nil {
		return 0, 0, fmt.Errorf("accountant: open /proc/%d/io: %w", pid, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		n, convErr := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if convErr != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "read_bytes":
			readBytes = n
		case "write_bytes":
			writeBytes = n
		}
	}
	return readBytes, writeBytes, scanner.Err()
}

var _ Accountant = (*ProcessIOAccountant)(nil)
