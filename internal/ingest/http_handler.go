package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goodpartydata/voterflow/internal/domain"
	"github.com/goodpartydata/voterflow/internal/repository"
)

// Handler exposes the coordinator to the external scheduler over HTTP.
type Handler struct {
	coordinator *Coordinator
	audits      repository.AuditRepository
}

// NewHTTPHandler wires the run and audit endpoints.
func NewHTTPHandler(coordinator *Coordinator, audits repository.AuditRepository) http.Handler {
	h := &Handler{coordinator: coordinator, audits: audits}

	mux := http.NewServeMux()
	mux.HandleFunc("/ingest/run", h.handleRun)
	mux.HandleFunc("/ingest/audit", h.handleAudit)
	return mux
}

type runRequest struct {
	RunID string `json:"runId"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.RunID) == "" {
		http.Error(w, "runId is required", http.StatusBadRequest)
		return
	}

	result, err := h.coordinator.Run(r.Context(), req.RunID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnreadableSource) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{
			"result": result,
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.audits.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
