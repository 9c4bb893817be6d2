// Package core holds the domain model shared by the panel and the
// node agent: nodes, tunnels, the error taxonomy, and the small value
// types the rest of the orchestrator is built around.
package core

import (
	"strconv"
	"time"
)

// NodeRole identifies which side of a reverse tunnel a node plays.
type NodeRole string

const (
	RoleIran    NodeRole = "iran"
	RoleForeign NodeRole = "foreign"
)

// NodeStatus is the health of a node as last observed by the panel.
type NodeStatus string

const (
	NodeActive   NodeStatus = "active"
	NodeInactive NodeStatus = "inactive"
	NodeError    NodeStatus = "error"
)

// LocalNodeID is the sentinel IranNodeID value meaning "host
// this engine instance on the panel machine itself" rather than
// dispatching it to a registered node (spec.md §9: "panel-local
// engines"). No Node row exists for it.
const LocalNodeID = "panel-local"

// Recognized metadata keys (spec.md §3 "Node").
const (
	MetaRole          = "role"
	MetaIPAddress     = "ip_address"
	MetaAPIPort       = "api_port"
	MetaAPIAddress    = "api_address"
	MetaPanelAddress  = "panel_address"
	MetaAgentVersion  = "agent_version"
	DefaultNodeAPIPort = 8888
)

// Node is a registered agent endpoint.
type Node struct {
	ID          string
	Name        string
	Fingerprint string
	Status      NodeStatus
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role returns the node's configured role, or "" if unset.
func (n *Node) Role() NodeRole {
	return NodeRole(n.Metadata[MetaRole])
}

// IPAddress returns the node's configured IP address, or "" if unset.
func (n *Node) IPAddress() string {
	return n.Metadata[MetaIPAddress]
}

// APIPort returns the node's agent API port, defaulting to 8888.
func (n *Node) APIPort() int {
	if v, ok := n.Metadata[MetaAPIPort]; ok && v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	return DefaultNodeAPIPort
}

// APIAddress returns the address the panel should dial to reach this
// node's agent API: metadata override, else ip_address:api_port.
func (n *Node) APIAddress() string {
	if v, ok := n.Metadata[MetaAPIAddress]; ok && v != "" {
		return v
	}
	return n.IPAddress() + ":" + strconv.Itoa(n.APIPort())
}
