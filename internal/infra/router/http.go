package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

type HTTPHandlerOptions struct {
	Logger *zap.Logger
}

// NewHTTPHandler exposes worker selection over HTTP. Callers identify
// themselves through the X-User-ID and X-Organization-ID headers; private
// offerings resolve only within the caller's organization.
func NewHTTPHandler(selector *Selector, opts HTTPHandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &httpHandler{
		selector: selector,
		logger:   logger.Named("router.http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/workers/select", h.handleSelect)
	mux.HandleFunc("/v1/models/resolve", h.handleResolve)
	return mux
}

type httpHandler struct {
	selector *Selector
	logger   *zap.Logger
}

func (h *httpHandler) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	selection, err := h.selector.Select(r.Context(), query.Get("model"), query.Get("sticky"), callerFrom(r))
	if err != nil {
		h.writeSelectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selection)
}

type resolveResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ModelID        string `json:"model_id"`
	OrganizationID string `json:"organization_id,omitempty"`
}

func (h *httpHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ref := r.URL.Query().Get("model")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "model required")
		return
	}
	offering, err := h.selector.ResolveModel(r.Context(), ref, callerFrom(r))
	if err != nil {
		h.writeSelectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		ID:             offering.ID,
		Name:           offering.Name,
		ModelID:        offering.ModelID,
		OrganizationID: offering.OrganizationID,
	})
}

func (h *httpHandler) writeSelectionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoWorkerAvailable):
		writeError(w, http.StatusNotFound, "no worker available")
	case errors.Is(err, domain.ErrModelNotFound):
		writeError(w, http.StatusNotFound, "model not found")
	case errors.Is(err, domain.ErrOrganizationMismatch):
		writeError(w, http.StatusForbidden, "model belongs to another organization")
	default:
		h.logger.Error("selection request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func callerFrom(r *http.Request) domain.Caller {
	return domain.Caller{
		UserID:         r.Header.Get("X-User-ID"),
		OrganizationID: r.Header.Get("X-Organization-ID"),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
