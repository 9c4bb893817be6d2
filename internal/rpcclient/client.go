// Package rpcclient is the panel-side HTTP client for the node
// agent's apply/remove/status API (spec.md §5: "RPC transport").
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tunnelforge/orchestrator/internal/core"
)

// Timeouts per spec.md §5: most calls use the default; applying a
// tunnel may need longer since the node has to start a subprocess and
// wait for it to settle.
const (
	DefaultTimeout = 10 * time.Second
	ApplyTimeout   = 30 * time.Second
)

// Client calls one node agent's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	nodeID     string
}

// New returns a Client dialing the node agent at baseURL (e.g.
// "http://10.0.0.5:8888") on behalf of nodeID, used only to label
// NodeUnreachable errors.
func New(nodeID, baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		nodeID:     nodeID,
	}
}

type applyRequest struct {
	TunnelID string    `json:"tunnel_id"`
	Core     core.Core `json:"core"`
	Spec     core.Spec `json:"spec"`
}

// Apply asks the node to start or restart tunnelID's engine instance.
func (c *Client) Apply(ctx context.Context, tunnelID string, coreName core.Core, spec core.Spec) error {
	ctx, cancel := context.WithTimeout(ctx, ApplyTimeout)
	defer cancel()
	return c.post(ctx, "/agent/tunnels/apply", applyRequest{TunnelID: tunnelID, Core: coreName, Spec: spec}, nil)
}

type removeRequest struct {
	TunnelID string `json:"tunnel_id"`
}

// Remove asks the node to stop and forget tunnelID.
func (c *Client) Remove(ctx context.Context, tunnelID string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return c.post(ctx, "/agent/tunnels/remove", removeRequest{TunnelID: tunnelID}, nil)
}

// Status is the node's reported state for a single tunnel.
type Status struct {
	Running bool   `json:"running"`
	LogTail string `json:"log_tail,omitempty"`
	Usage   struct {
		IngressBytes int64 `json:"IngressBytes"`
		EgressBytes  int64 `json:"EgressBytes"`
	} `json:"usage"`
}

// TunnelStatus fetches the node's current status for tunnelID.
func (c *Client) TunnelStatus(ctx context.Context, tunnelID string) (*Status, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	var out Status
	if err := c.get(ctx, "/agent/tunnels/status?tunnel_id="+tunnelID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NodeStatus is the node's overall health payload.
type NodeStatus struct {
	Version     string `json:"version"`
	TunnelCount int    `json:"tunnel_count"`
}

// Health fetches the node's overall status.
func (c *Client) Health(ctx context.Context) (*NodeStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	var out NodeStatus
	if err := c.get(ctx, "/agent/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("rpcclient: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("rpcclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("rpcclient: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.NodeUnreachable{NodeID: c.nodeID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error == "" {
			errResp.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return statusToError(resp.StatusCode, errResp.Error)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rpcclient: decode response: %w", err)
	}
	return nil
}

func statusToError(status int, message string) error {
	switch status {
	case http.StatusNotFound:
		return &core.ErrTunnelNotFound{TunnelID: ""}
	case http.StatusBadRequest:
		return core.NewValidationError("%s", message)
	case http.StatusConflict:
		return core.NewConflictError("%s", message)
	case http.StatusBadGateway:
		return &core.EngineFailure{LogTail: message}
	default:
		return fmt.Errorf("rpcclient: %s", message)
	}
}
