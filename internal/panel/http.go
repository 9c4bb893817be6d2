package panel

import (
	"encoding/json"
	"net/http"

	"github.com/tunnelforge/orchestrator/internal/core"
)

// nodeRequest is the body of POST /panel/nodes.
type nodeRequest struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// createTunnelRequest is the body of POST /panel/tunnels.
type createTunnelRequest struct {
	Name          string    `json:"name"`
	Core          core.Core `json:"core"`
	Type          string    `json:"type"`
	NodeID        string    `json:"node_id"`
	IranNodeID    string    `json:"iran_node_id"`
	ForeignNodeID string    `json:"foreign_node_id"`
	Spec          core.Spec `json:"spec"`
}

// updateTunnelRequest is the body of PATCH /panel/tunnels/{id}.
type updateTunnelRequest struct {
	Name *string   `json:"name"`
	Spec core.Spec `json:"spec"`
}

// usagePushRequest is the body of POST /panel/usage/push. The node
// agent in this repository does not send it; the panel collects node
// usage itself through RunUsagePoller.
type usagePushRequest struct {
	TunnelID string `json:"tunnel_id"`
	NodeID   string `json:"node_id"`
	Bytes    int64  `json:"bytes"`
}

// Mount registers the panel's HTTP routes onto mux.
func (p *Panel) Mount(mux *http.ServeMux) error {
	mux.HandleFunc("POST /panel/nodes", p.handleRegisterNode)
	mux.HandleFunc("GET /panel/nodes", p.handleListNodes)
	mux.HandleFunc("GET /panel/nodes/{id}", p.handleGetNode)
	mux.HandleFunc("DELETE /panel/nodes/{id}", p.handleDeleteNode)

	mux.HandleFunc("POST /panel/tunnels", p.handleCreateTunnel)
	mux.HandleFunc("GET /panel/tunnels", p.handleListTunnels)
	mux.HandleFunc("GET /panel/tunnels/{id}", p.handleGetTunnel)
	mux.HandleFunc("PATCH /panel/tunnels/{id}", p.handleUpdateTunnel)
	mux.HandleFunc("DELETE /panel/tunnels/{id}", p.handleDeleteTunnel)
	mux.HandleFunc("POST /panel/tunnels/{id}/apply", p.handleApplyTunnel)
	mux.HandleFunc("GET /panel/tunnels/{id}/status", p.handleTunnelStatus)

	mux.HandleFunc("POST /panel/usage/push", p.handlePushUsage)
	return nil
}

func (p *Panel) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n := &core.Node{Name: req.Name, Metadata: req.Metadata}
	out, err := p.RegisterNode(r.Context(), n)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (p *Panel) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := p.ListNodes(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (p *Panel) handleGetNode(w http.ResponseWriter, r *http.Request) {
	n, err := p.GetNode(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (p *Panel) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := p.DeleteNode(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Panel) handleCreateTunnel(w http.ResponseWriter, r *http.Request) {
	var req createTunnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := p.CreateTunnel(r.Context(), core.CreateIntent{
		Name:          req.Name,
		Core:          req.Core,
		Type:          req.Type,
		NodeID:        req.NodeID,
		IranNodeID:    req.IranNodeID,
		ForeignNodeID: req.ForeignNodeID,
		Spec:          req.Spec,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (p *Panel) handleListTunnels(w http.ResponseWriter, r *http.Request) {
	tunnels, err := p.ListTunnels(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tunnels)
}

func (p *Panel) handleGetTunnel(w http.ResponseWriter, r *http.Request) {
	t, err := p.GetTunnel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (p *Panel) handleUpdateTunnel(w http.ResponseWriter, r *http.Request) {
	var req updateTunnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := p.UpdateTunnel(r.Context(), r.PathValue("id"), core.UpdatePatch{Name: req.Name, Spec: req.Spec})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (p *Panel) handleDeleteTunnel(w http.ResponseWriter, r *http.Request) {
	if err := p.DeleteTunnel(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Panel) handleApplyTunnel(w http.ResponseWriter, r *http.Request) {
	if err := p.ApplyTunnel(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Panel) handleTunnelStatus(w http.ResponseWriter, r *http.Request) {
	st, err := p.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (p *Panel) handlePushUsage(w http.ResponseWriter, r *http.Request) {
	var req usagePushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TunnelID == "" {
		writeError(w, http.StatusBadRequest, core.NewValidationError("tunnel_id is required"))
		return
	}
	if err := p.PushUsage(r.Context(), req.TunnelID, req.NodeID, req.Bytes); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps the core error taxonomy (spec.md §7) onto HTTP
// status codes.
func statusFor(err error) int {
	switch e := err.(type) {
	case *core.OpError:
		switch e.Kind {
		case core.KindValidation:
			return http.StatusBadRequest
		case core.KindConflict:
			return http.StatusConflict
		case core.KindQuotaExceeded:
			return http.StatusForbidden
		}
	case *core.ErrTunnelNotFound, *core.ErrNodeNotFound:
		return http.StatusNotFound
	case *core.EngineFailure:
		return http.StatusBadGateway
	case *core.NodeUnreachable:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
