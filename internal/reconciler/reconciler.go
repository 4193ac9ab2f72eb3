// Package reconciler implements the policy reconciler (C5): the state
// machine that turns one signal (create, edit or delete) plus the
// profile/session facts already carried on it into an ordered sequence of
// FortiGate Gateway calls, with whole-sequence failover across the NAS-IP's
// FortiGate list and dedup-aware sharing of service/policy objects across
// subscribers with the same rules hash.
package reconciler

import (
	"context"

	"github.com/solidex/shpak/internal/domain"
	"github.com/solidex/shpak/internal/fortigate"
	"github.com/solidex/shpak/internal/portmatrix"
	"github.com/solidex/shpak/internal/repository"
	"github.com/rs/zerolog"
)

// Reconciler drives the FortiGate Gateway to converge device state with the
// signal it is given. It carries no per-signal state of its own; every
// call is parameterised by the signal and the device currently under trial.
type Reconciler struct {
	gateway  *fortigate.Client
	profiles *repository.ProfileRepository
	logs     *repository.PolicyLogRepository
	matrix   *portmatrix.Matrix
	fgMap    map[string][]string
	template fortigate.DefaultTemplate
	logger   zerolog.Logger
}

// New builds a Reconciler. fgMap is the NAS-IP to FortiGate-fleet failover
// map (FORTI_GATE_<i>_NAS/FGS, resolved at config load).
func New(
	gateway *fortigate.Client,
	profiles *repository.ProfileRepository,
	logs *repository.PolicyLogRepository,
	matrix *portmatrix.Matrix,
	fgMap map[string][]string,
	template fortigate.DefaultTemplate,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		gateway:  gateway,
		profiles: profiles,
		logs:     logs,
		matrix:   matrix,
		fgMap:    fgMap,
		template: template,
		logger:   logger,
	}
}

// Handle dispatches sig to the matching sequence, attempting the whole
// sequence on each FortiGate in the NAS-IP's failover list in turn until
// one succeeds. It does not roll back partial progress on a failed device:
// the next signal for the same subscriber is the only recovery path.
func (r *Reconciler) Handle(ctx context.Context, sig domain.PolicySignal) domain.SignalResult {
	fgList := r.fgMap[sig.NASIPAddress]
	if len(fgList) == 0 {
		r.logger.Warn().Str("nas", sig.NASIPAddress).Str("login", sig.Login).Msg("reconciler: no fortigate for nas-ip")
		return domain.SignalResult{Success: false, Reason: "no fortigate configured for nas-ip"}
	}

	var lastFG string
	for _, fg := range fgList {
		lastFG = fg
		result, ok := r.attempt(ctx, fg, sig)
		if ok {
			result.Success = true
			result.FGAddress = fg
			r.appendLog(ctx, sig, fg, result, http200)
			return result
		}
		r.logger.Warn().Str("fg", fg).Str("login", sig.Login).Str("action", string(sig.Action)).Msg("reconciler: device failed, trying next in failover list")
	}

	result := domain.SignalResult{Success: false, FGAddress: lastFG, Reason: "all fortigates in failover list failed"}
	r.appendLog(ctx, sig, lastFG, result, http502)
	return result
}

const (
	http200 = 200
	http502 = 502
)

func (r *Reconciler) appendLog(ctx context.Context, sig domain.PolicySignal, fg string, result domain.SignalResult, httpStatus int) {
	status := "success"
	if !result.Success {
		status = "failure"
	}
	entry := &domain.PolicyLog{
		User:       sig.Login,
		PolicyID:   result.PolicyID,
		Result:     status,
		HTTPStatus: httpStatus,
		FGAddress:  fg,
	}
	if err := r.logs.Append(ctx, entry); err != nil {
		r.logger.Error().Err(err).Str("login", sig.Login).Msg("reconciler: failed to append policy log")
	}
}

func (r *Reconciler) attempt(ctx context.Context, fg string, sig domain.PolicySignal) (domain.SignalResult, bool) {
	switch sig.Action {
	case domain.SignalCreate:
		return r.handleCreate(ctx, fg, sig)
	case domain.SignalEdit:
		return r.handleEdit(ctx, fg, sig)
	case domain.SignalDelete:
		return r.handleDelete(ctx, fg, sig)
	default:
		r.logger.Error().Str("action", string(sig.Action)).Msg("reconciler: unknown signal action")
		return domain.SignalResult{Reason: "unknown action"}, false
	}
}

// handleCreate implements the "create" sequence:
//  1. If policy_id_by_hash exists: create_ip, create_ipv6, edit_policy(add).
//  2. Else: create_ip, create_ipv6, create_service, create_policy, move to
//     top, persist the new mkey.
func (r *Reconciler) handleCreate(ctx context.Context, fg string, sig domain.PolicySignal) (domain.SignalResult, bool) {
	policyIDByHash, err := r.profiles.PolicyIDByHash(ctx, sig.Hash)
	if err != nil {
		r.logger.Error().Err(err).Str("hash", sig.Hash).Msg("reconciler: policy_id_by_hash query failed")
		return domain.SignalResult{}, false
	}

	if !r.gateway.CreateIP(ctx, fg, sig.Login, sig.FramedIPAddress) {
		return domain.SignalResult{}, false
	}
	if !r.gateway.CreateIPv6(ctx, fg, sig.Login, sig.DelegatedIPv6Prefix) {
		return domain.SignalResult{}, false
	}

	if policyIDByHash != nil {
		if _, ok := r.gateway.EditPolicy(ctx, fg, *policyIDByHash, fortigate.EditAdd, sig.Login, ""); !ok {
			return domain.SignalResult{}, false
		}
		return domain.SignalResult{PolicyID: policyIDByHash}, true
	}

	invTCP, invUDP := r.matrix.Invert(sig.TCPRules, sig.UDPRules)
	if !r.gateway.CreateService(ctx, fg, sig.Hash, invTCP, invUDP) {
		return domain.SignalResult{}, false
	}
	cp := r.gateway.CreatePolicy(ctx, fg, sig.Hash, sig.Login, r.template)
	if !cp.OK {
		return domain.SignalResult{}, false
	}
	if !r.gateway.MovePolicyToTop(ctx, fg, cp.MKey) {
		return domain.SignalResult{}, false
	}

	mkey := cp.MKey
	if err := r.profiles.UpdatePolicyID(ctx, sig.Hash, mkey); err != nil {
		r.logger.Error().Err(err).Str("hash", sig.Hash).Int64("mkey", mkey).Msg("reconciler: failed to persist new policy_id")
	}
	return domain.SignalResult{PolicyID: &mkey}, true
}

// handleEdit implements the "edit" sequence, branching on (policy_id_exists,
// policy_id_by_hash).
func (r *Reconciler) handleEdit(ctx context.Context, fg string, sig domain.PolicySignal) (domain.SignalResult, bool) {
	policyIDExists := false
	if sig.PolicyID != nil {
		exists, err := r.profiles.PolicyIDExists(ctx, *sig.PolicyID)
		if err != nil {
			r.logger.Error().Err(err).Int64("policy_id", *sig.PolicyID).Msg("reconciler: policy_id_exists query failed")
			return domain.SignalResult{}, false
		}
		policyIDExists = exists
	}

	policyIDByHash, err := r.profiles.PolicyIDByHash(ctx, sig.Hash)
	if err != nil {
		r.logger.Error().Err(err).Str("hash", sig.Hash).Msg("reconciler: policy_id_by_hash query failed")
		return domain.SignalResult{}, false
	}

	invTCP, invUDP := r.matrix.Invert(sig.TCPRules, sig.UDPRules)

	switch {
	case !policyIDExists && policyIDByHash == nil:
		// Rename this subscriber's own policy/service in place: still the
		// only user of old_hash, now under a new hash.
		if sig.PolicyID == nil {
			r.logger.Error().Str("login", sig.Login).Msg("reconciler: edit rename branch requires policy_id")
			return domain.SignalResult{}, false
		}
		if _, ok := r.gateway.EditPolicy(ctx, fg, *sig.PolicyID, fortigate.EditRename, sig.Login, sig.Hash); !ok {
			return domain.SignalResult{}, false
		}
		if !r.gateway.DeleteService(ctx, fg, sig.OldHash) {
			return domain.SignalResult{}, false
		}
		if !r.gateway.CreateService(ctx, fg, sig.Hash, invTCP, invUDP) {
			return domain.SignalResult{}, false
		}
		if err := r.profiles.UpdatePolicyID(ctx, sig.Hash, *sig.PolicyID); err != nil {
			r.logger.Error().Err(err).Str("hash", sig.Hash).Msg("reconciler: failed to persist renamed policy_id")
		}
		return domain.SignalResult{PolicyID: sig.PolicyID}, true

	case !policyIDExists && policyIDByHash != nil:
		// The old policy is orphaned (this subscriber was its last member,
		// and the new hash already has a live policy to join).
		if sig.PolicyID != nil {
			if !r.gateway.DeletePolicy(ctx, fg, *sig.PolicyID) {
				return domain.SignalResult{}, false
			}
		}
		if !r.gateway.DeleteService(ctx, fg, sig.OldHash) {
			return domain.SignalResult{}, false
		}
		if _, ok := r.gateway.EditPolicy(ctx, fg, *policyIDByHash, fortigate.EditAdd, sig.Login, ""); !ok {
			return domain.SignalResult{}, false
		}
		return domain.SignalResult{PolicyID: policyIDByHash}, true

	case policyIDExists && policyIDByHash == nil:
		// Evict this subscriber from the shared policy, then create a
		// fresh policy/service pair under the new hash.
		if _, ok := r.gateway.EditPolicy(ctx, fg, *sig.PolicyID, fortigate.EditRemove, sig.Login, ""); !ok {
			return domain.SignalResult{}, false
		}
		if !r.gateway.CreateIP(ctx, fg, sig.Login, sig.FramedIPAddress) {
			return domain.SignalResult{}, false
		}
		if !r.gateway.CreateIPv6(ctx, fg, sig.Login, sig.DelegatedIPv6Prefix) {
			return domain.SignalResult{}, false
		}
		if !r.gateway.CreateService(ctx, fg, sig.Hash, invTCP, invUDP) {
			return domain.SignalResult{}, false
		}
		cp := r.gateway.CreatePolicy(ctx, fg, sig.Hash, sig.Login, r.template)
		if !cp.OK {
			return domain.SignalResult{}, false
		}
		mkey := cp.MKey
		if err := r.profiles.UpdatePolicyID(ctx, sig.Hash, mkey); err != nil {
			r.logger.Error().Err(err).Str("hash", sig.Hash).Msg("reconciler: failed to persist new policy_id")
		}
		return domain.SignalResult{PolicyID: &mkey}, true

	default:
		// Both policies are live: migrate the subscriber between them.
		if _, ok := r.gateway.EditPolicy(ctx, fg, *sig.PolicyID, fortigate.EditRemove, sig.Login, ""); !ok {
			return domain.SignalResult{}, false
		}
		if _, ok := r.gateway.EditPolicy(ctx, fg, *policyIDByHash, fortigate.EditAdd, sig.Login, ""); !ok {
			return domain.SignalResult{}, false
		}
		return domain.SignalResult{PolicyID: policyIDByHash}, true
	}
}

// handleDelete implements the "delete" sequence: remove this subscriber
// from its policy if one is known, then fully tear down the policy object
// only if it was this subscriber's last remaining member.
func (r *Reconciler) handleDelete(ctx context.Context, fg string, sig domain.PolicySignal) (domain.SignalResult, bool) {
	if sig.PolicyID != nil {
		if _, ok := r.gateway.EditPolicy(ctx, fg, *sig.PolicyID, fortigate.EditRemove, sig.Login, ""); !ok {
			return domain.SignalResult{}, false
		}

		found, err := r.profiles.PolicyIDExists(ctx, *sig.PolicyID)
		if err != nil {
			r.logger.Error().Err(err).Int64("policy_id", *sig.PolicyID).Msg("reconciler: policy_id_exists query failed, assuming other members remain")
			found = true
		}
		if !found {
			if !r.gateway.DeletePolicy(ctx, fg, *sig.PolicyID) {
				return domain.SignalResult{}, false
			}
		}
	}

	if !r.gateway.DeleteService(ctx, fg, sig.Hash) {
		return domain.SignalResult{}, false
	}
	if !r.gateway.DeleteIP(ctx, fg, sig.Login) {
		return domain.SignalResult{}, false
	}
	if !r.gateway.DeleteIPv6(ctx, fg, sig.Login) {
		return domain.SignalResult{}, false
	}
	return domain.SignalResult{PolicyID: sig.PolicyID}, true
}
