package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/solidex/shpak/internal/domain"
	"github.com/solidex/shpak/internal/handler"
	"github.com/solidex/shpak/internal/repository"
)

// PolicyLogHandler serves POST /policy_logs, an HTTP append path to the same
// audit table the reconciler (C5) writes to in-process through the
// repository.
type PolicyLogHandler struct {
	logs *repository.PolicyLogRepository
}

// NewPolicyLogHandler builds a PolicyLogHandler.
func NewPolicyLogHandler(logs *repository.PolicyLogRepository) *PolicyLogHandler {
	return &PolicyLogHandler{logs: logs}
}

type policyLogRequest struct {
	User       string `json:"user"`
	PolicyID   *int64 `json:"policy_id"`
	Result     string `json:"result"`
	HTTPStatus int    `json:"http_status"`
	FGAddress  string `json:"fg_address"`
}

// Append handles POST /policy_logs.
func (h *PolicyLogHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req policyLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}
	entry := &domain.PolicyLog{
		User:       req.User,
		PolicyID:   req.PolicyID,
		Result:     req.Result,
		HTTPStatus: req.HTTPStatus,
		FGAddress:  req.FGAddress,
	}
	if err := h.logs.Append(r.Context(), entry); err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "append_failed", err.Error())
		return
	}
	handler.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"id": entry.ID})
}
