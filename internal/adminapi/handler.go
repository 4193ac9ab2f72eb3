// Package adminapi implements the profile admin API (C8): the HTTP surface
// the GUI uses to create, update and delete FW_Profiles, enforcing the
// "a live RADIUS session must exist" precondition with keepalive retries
// before it touches the reconciler.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/solidex/shpak/internal/domain"
	"github.com/solidex/shpak/internal/handler"
	"github.com/solidex/shpak/internal/reconciler"
	"github.com/solidex/shpak/internal/repository"
	"github.com/rs/zerolog"
)

// Handler serves the /firewall_profiles and /radius_check HTTP surfaces.
type Handler struct {
	profiles     *repository.ProfileRepository
	sessions     *repository.SessionRepository
	reconciler   *reconciler.Reconciler
	keepaliveURL string
	maxAttempts  int
	retryDelay   time.Duration
	httpClient   *http.Client
	logger       zerolog.Logger
}

// New builds a Handler.
func New(profiles *repository.ProfileRepository, sessions *repository.SessionRepository, rec *reconciler.Reconciler, keepaliveURL string, maxAttempts int, retryDelay time.Duration, logger zerolog.Logger) *Handler {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Handler{
		profiles:     profiles,
		sessions:     sessions,
		reconciler:   rec,
		keepaliveURL: keepaliveURL,
		maxAttempts:  maxAttempts,
		retryDelay:   retryDelay,
		httpClient:   &http.Client{Timeout: time.Second},
		logger:       logger,
	}
}

// profileRequest is the create/update request body.
type profileRequest struct {
	Login           string `json:"login"`
	Name            string `json:"name"`
	TCPRules        string `json:"tcp_rules"`
	UDPRules        string `json:"udp_rules"`
	FirewallProfile string `json:"firewall_profile"`
	IPPool          string `json:"ip_pool"`
	IPv6Pool        string `json:"ip_v6_pool"`
	RegionID        string `json:"region_id"`
}

// checkRadiusWithKeepalive enforces the "a live session must exist"
// precondition: up to maxAttempts lookups of the live session row, firing
// a best-effort keepalive POST between attempts so an active client can
// re-send Accounting-Start.
func (h *Handler) checkRadiusWithKeepalive(ctx context.Context, login string) (bool, *domain.RadiusSession) {
	for attempt := 0; attempt < h.maxAttempts; attempt++ {
		session, err := h.sessions.GetByUserName(ctx, login)
		if err != nil {
			h.logger.Error().Err(err).Str("login", login).Msg("adminapi: session lookup failed")
		}
		if session != nil {
			return true, session
		}
		if attempt < h.maxAttempts-1 {
			h.sendKeepalive(ctx, login)
			time.Sleep(h.retryDelay)
		}
	}
	return false, nil
}

func (h *Handler) sendKeepalive(ctx context.Context, login string) {
	if h.keepaliveURL == "" {
		return
	}
	body, _ := json.Marshal(map[string]string{"login": login})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.keepaliveURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Debug().Err(err).Str("login", login).Msg("adminapi: keepalive send failed")
		return
	}
	resp.Body.Close()
}

const preconditionMessage = "RADIUS Accounting-Start not found after 3 attempts"

// List handles GET /firewall_profiles[?login=&page=&page_size=].
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page <= 0 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize <= 0 {
		pageSize = 25
	}

	filter := domain.FirewallProfileFilter{
		Login:  q.Get("login"),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	result, err := h.profiles.List(r.Context(), filter)
	if err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	handler.WriteSuccess(w, result)
}

// Get handles GET /firewall_profiles/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_id", "id must be numeric")
		return
	}
	profile, err := h.profiles.GetByID(r.Context(), id)
	if err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if profile == nil {
		handler.WriteError(w, http.StatusNotFound, "not_found", "profile not found")
		return
	}
	handler.WriteSuccess(w, profile)
}

// Create handles POST /firewall_profiles.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}

	ctx := r.Context()
	found, session := h.checkRadiusWithKeepalive(ctx, req.Login)
	if !found {
		handler.WriteError(w, http.StatusBadRequest, "precondition_failed", preconditionMessage)
		return
	}

	profile := &domain.FirewallProfile{
		Login:           req.Login,
		Name:            req.Name,
		TCPRules:        req.TCPRules,
		UDPRules:        req.UDPRules,
		FirewallProfile: req.FirewallProfile,
		IPPool:          req.IPPool,
		IPv6Pool:        req.IPv6Pool,
		RegionID:        req.RegionID,
	}
	if err := h.profiles.Create(ctx, profile); err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}

	sig := domain.PolicySignal{
		Action:              domain.SignalCreate,
		Login:               req.Login,
		Hash:                profile.Hash,
		TCPRules:            req.TCPRules,
		UDPRules:            req.UDPRules,
		FramedIPAddress:     session.FramedIPAddress,
		DelegatedIPv6Prefix: session.DelegatedIPv6Prefix,
		NASIPAddress:        session.NASIPAddress,
	}
	result := h.reconciler.Handle(ctx, sig)
	if !result.Success {
		h.logger.Warn().Str("login", req.Login).Str("reason", result.Reason).Msg("adminapi: create signal failed")
	}

	handler.WriteSuccessStatus(w, http.StatusCreated, map[string]int64{"id": profile.ID})
}

// Update handles PUT /firewall_profiles/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_id", "id must be numeric")
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}

	ctx := r.Context()
	existing, err := h.profiles.GetByID(ctx, id)
	if err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if existing == nil {
		handler.WriteError(w, http.StatusNotFound, "not_found", "profile not found")
		return
	}
	oldHash := existing.Hash

	found, session := h.checkRadiusWithKeepalive(ctx, req.Login)
	if !found {
		handler.WriteError(w, http.StatusBadRequest, "precondition_failed", preconditionMessage)
		return
	}

	existing.Login = req.Login
	existing.Name = req.Name
	existing.TCPRules = req.TCPRules
	existing.UDPRules = req.UDPRules
	existing.FirewallProfile = req.FirewallProfile
	existing.IPPool = req.IPPool
	existing.IPv6Pool = req.IPv6Pool
	existing.RegionID = req.RegionID
	if err := h.profiles.Update(ctx, existing); err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "update_failed", err.Error())
		return
	}

	sig := domain.PolicySignal{
		Action:              domain.SignalEdit,
		Login:               req.Login,
		Hash:                existing.Hash,
		OldHash:             oldHash,
		TCPRules:            req.TCPRules,
		UDPRules:            req.UDPRules,
		FramedIPAddress:     session.FramedIPAddress,
		DelegatedIPv6Prefix: session.DelegatedIPv6Prefix,
		NASIPAddress:        session.NASIPAddress,
		PolicyID:            existing.PolicyID,
	}
	result := h.reconciler.Handle(ctx, sig)
	if !result.Success {
		h.logger.Warn().Str("login", req.Login).Str("reason", result.Reason).Msg("adminapi: edit signal failed")
	}

	handler.WriteSuccess(w, map[string]int64{"id": id})
}

// Delete handles DELETE /firewall_profiles/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_id", "id must be numeric")
		return
	}

	ctx := r.Context()
	existing, err := h.profiles.GetByID(ctx, id)
	if err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if existing == nil {
		handler.WriteError(w, http.StatusNotFound, "not_found", "profile not found")
		return
	}

	found, session := h.checkRadiusWithKeepalive(ctx, existing.Login)
	if !found {
		handler.WriteError(w, http.StatusBadRequest, "precondition_failed", preconditionMessage)
		return
	}

	if err := h.profiles.Delete(ctx, id); err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}

	sig := domain.PolicySignal{
		Action:       domain.SignalDelete,
		Login:        existing.Login,
		Hash:         existing.Hash,
		PolicyID:     existing.PolicyID,
		NASIPAddress: session.NASIPAddress,
	}
	result := h.reconciler.Handle(ctx, sig)
	if !result.Success {
		h.logger.Warn().Str("login", existing.Login).Str("reason", result.Reason).Msg("adminapi: delete signal failed")
	}

	handler.WriteSuccess(w, map[string]bool{"success": true})
}

// RadiusCheck handles GET /radius_check?login=, a debug endpoint reporting
// whether a login currently has a live session row.
func (h *Handler) RadiusCheck(w http.ResponseWriter, r *http.Request) {
	login := r.URL.Query().Get("login")
	session, err := h.sessions.GetByUserName(r.Context(), login)
	if err != nil {
		handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"found":   false,
			"message": "error checking RADIUS session: " + err.Error(),
		})
		return
	}
	if session == nil {
		handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"found":   false,
			"message": "RADIUS session not found",
			"comment": "waiting for RADIUS Accounting-Start...",
		})
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"found":   true,
		"message": "RADIUS session found",
		"data":    session,
	})
}

// UpdatePolicyIDRequest is the POST /firewall_profiles/update_policy_id body.
type UpdatePolicyIDRequest struct {
	Hash     string `json:"hash"`
	PolicyID int64  `json:"policy_id"`
}

// UpdatePolicyID handles POST /firewall_profiles/update_policy_id: persists
// a policy_id onto every profile sharing a hash, the same write the
// reconciler makes in-process through the repository.
func (h *Handler) UpdatePolicyID(w http.ResponseWriter, r *http.Request) {
	var req UpdatePolicyIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}
	if err := h.profiles.UpdatePolicyID(r.Context(), req.Hash, req.PolicyID); err != nil {
		handler.WriteError(w, http.StatusInternalServerError, "update_failed", err.Error())
		return
	}
	handler.WriteSuccess(w, map[string]bool{"success": true})
}
