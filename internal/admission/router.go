// Package admission implements the admission/signal router (C7): it
// accepts extracted RADIUS attribute bags (from C6's in-process handler, or
// from the POST /radius/event HTTP surface for parity with the original
// multi-service deployment), applies the Class filter, maintains
// RADIUS_Sessions, and dispatches create/delete signals to the reconciler.
package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/solidex/shpak/internal/database"
	"github.com/solidex/shpak/internal/domain"
	"github.com/solidex/shpak/internal/handler"
	"github.com/solidex/shpak/internal/radius"
	"github.com/solidex/shpak/internal/reconciler"
	"github.com/solidex/shpak/internal/repository"
	"github.com/rs/zerolog"
)

// dedupeTTL bounds how long a just-seen Accounting-Start is remembered, so
// a retransmission observed within the window does not re-dispatch a
// create signal the first delivery already triggered.
const dedupeTTL = 30 * time.Second

// Router is the admission/signal router.
type Router struct {
	sessions    *repository.SessionRepository
	profiles    *repository.ProfileRepository
	reconciler  *reconciler.Reconciler
	idempotency *database.Redis
	logger      zerolog.Logger
}

// New builds a Router. idempotency may be nil, in which case dedup is
// skipped (every retransmission re-dispatches, which is safe since the
// reconciler's sequences are themselves idempotent).
func New(sessions *repository.SessionRepository, profiles *repository.ProfileRepository, rec *reconciler.Reconciler, idempotency *database.Redis, logger zerolog.Logger) *Router {
	return &Router{
		sessions:    sessions,
		profiles:    profiles,
		reconciler:  rec,
		idempotency: idempotency,
		logger:      logger,
	}
}

// isSubscriberClass filters on the RADIUS Class attribute: the value must
// equal the token "2" or "00000002", whether the NAS encoded it as text or
// as a packed binary integer.
func isSubscriberClass(class string) bool {
	switch class {
	case "2", "00000002":
		return true
	case string([]byte{0, 0, 0, 2}), string([]byte{2}):
		return true
	default:
		return false
	}
}

// HandleAttributes is the RADIUS observer's EventHandler: called once per
// Accounting-Request in packet-arrival order, which is how ordering across
// signals for the same login is guaranteed.
func (r *Router) HandleAttributes(ctx context.Context, attrs radius.Attributes) {
	if !isSubscriberClass(attrs.Class) {
		return
	}

	switch attrs.AcctStatusType {
	case radius.AcctStatusTypeStart:
		r.handleStart(ctx, attrs)
	case radius.AcctStatusTypeStop:
		r.handleStop(ctx, attrs)
	default:
		// no-op: interim-update and other status types carry no policy
		// change.
	}
}

func (r *Router) handleStart(ctx context.Context, attrs radius.Attributes) {
	if r.idempotency != nil {
		key := "admission:start:" + attrs.UserName
		first, err := r.idempotency.SetNX(ctx, key, "1", dedupeTTL)
		if err == nil && !first {
			r.logger.Debug().Str("login", attrs.UserName).Msg("admission: duplicate accounting-start suppressed")
			return
		}
	}

	session := &domain.RadiusSession{
		UserName:            attrs.UserName,
		Timestamp:           time.Now().UTC(),
		AcctStatusType:      "start",
		FramedIPAddress:     attrs.FramedIPAddress,
		DelegatedIPv6Prefix: attrs.DelegatedIPv6Prefix,
		NASIPAddress:        attrs.NASIPAddress,
	}
	if err := r.sessions.Insert(ctx, session); err != nil {
		r.logger.Error().Err(err).Str("login", attrs.UserName).Msg("admission: failed to record session")
		return
	}

	profile, err := r.profiles.GetByLogin(ctx, attrs.UserName)
	if err != nil {
		r.logger.Error().Err(err).Str("login", attrs.UserName).Msg("admission: failed to look up profile")
		return
	}
	if profile == nil {
		// No profile yet: policy is installed later when the admin
		// creates one (C8 emits the signal at that point).
		return
	}

	sig := domain.PolicySignal{
		Action:              domain.SignalCreate,
		Login:               attrs.UserName,
		Hash:                profile.Hash,
		TCPRules:            profile.TCPRules,
		UDPRules:            profile.UDPRules,
		FramedIPAddress:     attrs.FramedIPAddress,
		DelegatedIPv6Prefix: attrs.DelegatedIPv6Prefix,
		NASIPAddress:        attrs.NASIPAddress,
	}
	result := r.reconciler.Handle(ctx, sig)
	if !result.Success {
		r.logger.Warn().Str("login", attrs.UserName).Str("reason", result.Reason).Msg("admission: create signal failed")
	}
}

func (r *Router) handleStop(ctx context.Context, attrs radius.Attributes) {
	if err := r.sessions.Delete(ctx, attrs.UserName); err != nil {
		r.logger.Error().Err(err).Str("login", attrs.UserName).Msg("admission: failed to delete session")
	}

	profile, err := r.profiles.GetByLogin(ctx, attrs.UserName)
	if err != nil {
		r.logger.Error().Err(err).Str("login", attrs.UserName).Msg("admission: failed to look up profile")
		return
	}
	if profile == nil {
		return
	}

	sig := domain.PolicySignal{
		Action:       domain.SignalDelete,
		Login:        attrs.UserName,
		Hash:         profile.Hash,
		PolicyID:     profile.PolicyID,
		NASIPAddress: attrs.NASIPAddress,
	}
	result := r.reconciler.Handle(ctx, sig)
	if !result.Success {
		r.logger.Warn().Str("login", attrs.UserName).Str("reason", result.Reason).Msg("admission: delete signal failed")
	}
}

// radiusEventRequest is the POST /radius/event body.
type radiusEventRequest struct {
	Attrs map[string]string `json:"attrs"`
}

// HandleRadiusEvent is the POST /radius/event HTTP surface kept for parity
// with the original's split-service deployment. The single-binary
// controller normally dispatches straight from the RADIUS observer via
// HandleAttributes.
func (r *Router) HandleRadiusEvent(w http.ResponseWriter, req *http.Request) {
	var body radiusEventRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid_body", "could not decode request body")
		return
	}

	var acctStatus uint32
	switch body.Attrs["Acct-Status-Type"] {
	case "start", "1":
		acctStatus = radius.AcctStatusTypeStart
	case "stop", "2":
		acctStatus = radius.AcctStatusTypeStop
	}

	attrs := radius.Attributes{
		UserName:            body.Attrs["User-Name"],
		Class:               body.Attrs["Class"],
		AcctStatusType:      acctStatus,
		FramedIPAddress:     body.Attrs["Framed-IP-Address"],
		DelegatedIPv6Prefix: body.Attrs["Delegated-IPv6-Prefix"],
		NASIPAddress:        body.Attrs["NAS-IP-Address"],
	}
	r.HandleAttributes(req.Context(), attrs)
	handler.WriteSuccess(w, map[string]bool{"success": true})
}
