package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/bankerai/orchestrator/internal/classification"
	"github.com/bankerai/orchestrator/internal/orchestrator"
)

// QueryHandler serves POST /api/v1/query.
type QueryHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func NewQueryHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{orch: orch, logger: logger}
}

type queryRequest struct {
	Query string `json:"query"`
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.orch.HandleQuery(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, classification.ErrEmptyQuery) {
			sendError(w, http.StatusBadRequest, "query must not be empty")
			return
		}
		h.logger.Error("Query processing failed", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("Response write failed",
			zap.String("request_id", resp.RequestID), zap.Error(err))
	}
}

func sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
