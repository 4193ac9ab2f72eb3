package reconciler

import (
	"encoding/json"
	"net/http"

	"github.com/solidex/shpak/internal/domain"
	"github.com/solidex/shpak/internal/handler"
	"github.com/rs/zerolog"
)

// signalRequest mirrors the original's dynamic attribute bag: a handful of
// named fields the reconciler materialises explicitly, kept alongside the
// raw map so unrecognised string-valued keys still round-trip through Extra.
type signalRequest struct {
	Action string                 `json:"action"`
	Data   map[string]interface{} `json:"data"`
}

// Handler adapts a Reconciler to the POST /signal HTTP surface, kept
// for parity with the original's cross-service deployment; the admission
// router and admin API call Handle directly in-process.
type Handler struct {
	reconciler *Reconciler
	logger     zerolog.Logger
}

// NewHandler builds a signal HTTP Handler.
func NewHandler(r *Reconciler, logger zerolog.Logger) *Handler {
	return &Handler{reconciler: r, logger: logger}
}

type keepaliveRequest struct {
	Login string `json:"login"`
}

// ServeKeepalive handles POST /keepalive: it logs the login it receives and
// acknowledges. The admin API's precondition retry posts its keepalive to
// the URL built from MHE_APP_HOST/MHE_APP_PORT, which reaches this endpoint
// only when that address points at this controller.
func (h *Handler) ServeKeepalive(w http.ResponseWriter, r *http.Request) {
	var req keepaliveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}
	h.logger.Info().Str("login", req.Login).Msg("reconciler: keepalive received")
	handler.WriteSuccess(w, map[string]bool{"success": true})
}

// ServeSignal handles POST /signal.
func (h *Handler) ServeSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}

	sig, err := decodeSignal(req)
	if err != nil {
		handler.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	result := h.reconciler.Handle(r.Context(), sig)
	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": result.Success, "result": result})
}

func decodeSignal(req signalRequest) (domain.PolicySignal, error) {
	var action domain.SignalAction
	switch req.Action {
	case "create":
		action = domain.SignalCreate
	case "edit":
		action = domain.SignalEdit
	case "delete":
		action = domain.SignalDelete
	default:
		return domain.PolicySignal{}, errUnknownAction
	}

	data := req.Data
	login := str(data, "login")
	if login == "" {
		login = str(data, "user_name")
	}

	sig := domain.PolicySignal{
		Action:              action,
		Login:               login,
		Hash:                str(data, "hash"),
		OldHash:             str(data, "old_hash"),
		TCPRules:            str(data, "tcp_rules"),
		UDPRules:            str(data, "udp_rules"),
		FramedIPAddress:     str(data, "Framed-IP-Address"),
		DelegatedIPv6Prefix: str(data, "Delegated-IPv6-Prefix"),
		NASIPAddress:        str(data, "NAS-IP-Address"),
	}
	for k, v := range data {
		switch k {
		case "login", "user_name", "hash", "old_hash", "tcp_rules", "udp_rules",
			"Framed-IP-Address", "Delegated-IPv6-Prefix", "NAS-IP-Address", "policy_id":
			continue
		}
		if s, ok := v.(string); ok {
			if sig.Extra == nil {
				sig.Extra = make(map[string]string)
			}
			sig.Extra[k] = s
		}
	}
	if pid, ok := intPtr(data, "policy_id"); ok {
		sig.PolicyID = pid
	}
	return sig, nil
}

func str(data map[string]interface{}, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func intPtr(data map[string]interface{}, key string) (*int64, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, false
	}
	switch n := v.(type) {
	case float64:
		i := int64(n)
		return &i, true
	}
	return nil, false
}

type signalError string

func (e signalError) Error() string { return string(e) }

const errUnknownAction = signalError("unknown action")
