package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/solidex/shpak/internal/handler"
	"github.com/solidex/shpak/internal/repository"
)

// QueryHandler serves the policy-id query endpoints that expose the
// policy_id_by_hash/policy_id_exists derived facts over HTTP, for parity
// with the original multi-service deployment. The reconciler itself calls
// the repository directly rather than through this surface.
type QueryHandler struct {
	profiles *repository.ProfileRepository
}

// NewQueryHandler builds a QueryHandler.
func NewQueryHandler(profiles *repository.ProfileRepository) *QueryHandler {
	return &QueryHandler{profiles: profiles}
}

type byHashRequest struct {
	Hash string `json:"hash"`
}

// ByHash handles POST /query/policy_id/by_hash.
func (h *QueryHandler) ByHash(w http.ResponseWriter, r *http.Request) {
	var req byHashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}
	policyID, err := h.profiles.PolicyIDByHash(r.Context(), req.Hash)
	if err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	handler.WriteSuccess(w, map[string]*int64{"policy_id": policyID})
}

type checkRequest struct {
	PolicyID int64  `json:"policy_id"`
	Hash     string `json:"hash"`
}

// Check handles PUT /query/policy_id/check.
func (h *QueryHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}
	exists, err := h.profiles.PolicyIDExists(r.Context(), req.PolicyID)
	if err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	policyIDByHash, err := h.profiles.PolicyIDByHash(r.Context(), req.Hash)
	if err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	handler.WriteSuccess(w, map[string]interface{}{
		"policy_id_exists":  exists,
		"policy_id_by_hash": policyIDByHash,
	})
}

type existsRequest struct {
	PolicyID int64 `json:"policy_id"`
}

// CheckDelete handles DELETE /query/policy_id/check.
func (h *QueryHandler) CheckDelete(w http.ResponseWriter, r *http.Request) {
	var req existsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}
	exists, err := h.profiles.PolicyIDExists(r.Context(), req.PolicyID)
	if err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	handler.WriteSuccess(w, map[string]bool{"policy_id_exists": exists})
}
