package agent

import (
	"encoding/json"
	"net/http"

	"github.com/tunnelforge/orchestrator/internal/core"
)

// applyRequest is the body of POST /agent/tunnels/apply.
type applyRequest struct {
	TunnelID string    `json:"tunnel_id"`
	Core     core.Core `json:"core"`
	Spec     core.Spec `json:"spec"`
}

// removeRequest is the body of POST /agent/tunnels/remove.
type removeRequest struct {
	TunnelID string `json:"tunnel_id"`
}

// Mount registers the node agent's HTTP routes onto mux.
func (a *Agent) Mount(mux *http.ServeMux) error {
	mux.HandleFunc("POST /agent/tunnels/apply", a.handleApply)
	mux.HandleFunc("POST /agent/tunnels/remove", a.handleRemove)
	mux.HandleFunc("GET /agent/tunnels/status", a.handleStatus)
	mux.HandleFunc("GET /agent/status", a.handleNodeStatus)
	return nil
}

func (a *Agent) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.Apply(r.Context(), req.TunnelID, req.Core, req.Spec); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Agent) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.Remove(r.Context(), req.TunnelID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	tunnelID := r.URL.Query().Get("tunnel_id")
	if tunnelID == "" {
		writeError(w, http.StatusBadRequest, core.NewValidationError("tunnel_id is required"))
		return
	}
	st, err := a.Status(r.Context(), tunnelID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *Agent) handleNodeStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.NodeStatus())
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
