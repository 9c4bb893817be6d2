//go:build linux

package accountant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
)

// tableName is the nftables table accounting rules live in, kept
// separate from any firewalling table so a restart of this component
// never disturbs unrelated policy.
const tableName = "tunnelforge_acct"
const chainName = "acct"

// NftablesAccountant counts per-tunnel ingress/egress traffic with
// named nftables counter objects, one pair per forwarded port.
type NftablesAccountant struct {
	mu      sync.Mutex
	logger  *slog.Logger
	ports   map[string][]int // tunnelID -> forwarded ports, for Remove/Read
}

// NewNftablesAccountant returns an Accountant backed by the kernel's
// nftables subsystem. It requires CAP_NET_ADMIN.
func NewNftablesAccountant(logger *slog.Logger) *NftablesAccountant {
	if logger == nil {
		logger = slog.Default()
	}
	return &NftablesAccountant{logger: logger, ports: make(map[string][]int)}
}

func ingressCounterName(tunnelID string, port int) string {
	return fmt.Sprintf("in_%s_%d", tunnelID, port)
}

func egressCounterName(tunnelID string, port int) string {
	return fmt.Sprintf("out_%s_%d", tunnelID, port)
}

func (a *NftablesAccountant) Install(ctx context.Context, tunnelID string, ports []int) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("accountant: nftables connect: %w", err)
	}

	table := conn.AddTable(&nftables.Table{Family: nftables.TableFamilyINet, Name: tableName})
	chain := conn.AddChain(&nftables.Chain{
		Name:     chainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookForward,
		Priority: nftables.ChainPriorityFilter,
	})

	for _, port := range ports {
		inName := ingressCounterName(tunnelID, port)
		outName := egressCounterName(tunnelID, port)

		conn.AddObj(&nftables.CounterObj{Table: table, Name: inName})
		conn.AddObj(&nftables.CounterObj{Table: table, Name: outName})

		conn.AddRule(&nftables.Rule{
			Table: table,
			Chain: chain,
			Exprs: portMatchExprs(port, destPortOffset),
		})
		conn.AddRule(&nftables.Rule{
			Table: table,
			Chain: chain,
			Exprs: portMatchExprs(port, srcPortOffset),
		})
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("accountant: install tunnel %s: %w", tunnelID, err)
	}

	a.mu.Lock()
	a.ports[tunnelID] = append([]int(nil), ports...)
	a.mu.Unlock()

	a.logger.Info("traffic counters installed", "tunnel_id", tunnelID, "ports", ports)
	return nil
}

const (
	destPortOffset = 2
	srcPortOffset  = 0
)

// portMatchExprs builds a TCP/UDP transport-header port match by
// byte offset (0 = source port, 2 = destination port) followed by a
// counter, mirroring the rule-shape plexd uses for its firewall rules
// but appending a named counter object reference instead of an
// anonymous counter so usage can be read back later.
func portMatchExprs(port int, offset uint32) []expr.Any {
	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseTransportHeader,
			Offset:       offset,
			Len:          2,
		},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     []byte{byte(port >> 8), byte(port)},
		},
		&expr.Counter{},
	}
}

func (a *NftablesAccountant) Remove(ctx context.Context, tunnelID string) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("accountant: nftables connect: %w", err)
	}

	a.mu.Lock()
	ports := a.ports[tunnelID]
	delete(a.ports, tunnelID)
	a.mu.Unlock()

	table := &nftables.Table{Family: nftables.TableFamilyINet, Name: tableName}
	for _, port := range ports {
		conn.DelObj(&nftables.CounterObj{Table: table, Name: ingressCounterName(tunnelID, port)})
		conn.DelObj(&nftables.CounterObj{Table: table, Name: egressCounterName(tunnelID, port)})
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("accountant: remove tunnel %s: %w", tunnelID, err)
	}
	return nil
}

func (a *NftablesAccountant) Read(ctx context.Context, tunnelID string) (Sample, error) {
	conn, err := nftables.New()
	if err != nil {
		return Sample{}, fmt.Errorf("accountant: nftables connect: %w", err)
	}

	a.mu.Lock()
	ports := append([]int(nil), a.ports[tunnelID]...)
	a.mu.Unlock()

	table := &nftables.Table{Family: nftables.TableFamilyINet, Name: tableName}
	var sample Sample
	for _, port := range ports {
		in, err := conn.GetObject(&nftables.CounterObj{Table: table, Name: ingressCounterName(tunnelID, port)})
		if err != nil {
			return Sample{}, fmt.Errorf("accountant: read ingress counter for tunnel %s port %d: %w", tunnelID, port, err)
		}
		if c, ok := in.(*nftables.CounterObj); ok {
			sample.IngressBytes += int64(c.Bytes)
		}
		out, err := conn.GetObject(&nftables.CounterObj{Table: table, Name: egressCounterName(tunnelID, port)})
		if err != nil {
			return Sample{}, fmt.Errorf("accountant: read egress counter for tunnel %s port %d: %w", tunnelID, port, err)
		}
		if c, ok := out.(*nftables.CounterObj); ok {
			sample.EgressBytes += int64(c.Bytes)
		}
	}
	return sample, nil
}

var _ Accountant = (*NftablesAccountant)(nil)
