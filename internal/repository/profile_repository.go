// Package repository provides relational access to the three tables the
// controller owns: FW_Profiles, RADIUS_Sessions and PolicyLogs.
package repository

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/solidex/shpak/internal/domain"
)

// ProfileRepository handles FW_Profiles persistence.
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// ComputeHash returns the hex MD5 of tcpRules + "|" + udpRules, the
// dedup key that lets two profiles share one FortiGate service/policy pair.
func ComputeHash(tcpRules, udpRules string) string {
	sum := md5.Sum([]byte(tcpRules + "|" + udpRules))
	return hex.EncodeToString(sum[:])
}

// Create inserts a new FW_Profiles row, computing its hash.
func (r *ProfileRepository) Create(ctx context.Context, p *domain.FirewallProfile) error {
	p.Hash = ComputeHash(p.TCPRules, p.UDPRules)
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	query := `
		INSERT INTO fw_profiles (
			login, name, tcp_rules, udp_rules, firewall_profile,
			ip_pool, ip_v6_pool, region_id, policy_id, hash, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		p.Login, p.Name, p.TCPRules, p.UDPRules, p.FirewallProfile,
		p.IPPool, p.IPv6Pool, p.RegionID, p.PolicyID, p.Hash, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
}

// Update rewrites an existing profile's rule set and metadata, recomputing
// its hash.
func (r *ProfileRepository) Update(ctx context.Context, p *domain.FirewallProfile) error {
	p.Hash = ComputeHash(p.TCPRules, p.UDPRules)
	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE fw_profiles SET
			name = $2, tcp_rules = $3, udp_rules = $4, firewall_profile = $5,
			ip_pool = $6, ip_v6_pool = $7, region_id = $8, policy_id = $9,
			hash = $10, updated_at = $11
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.TCPRules, p.UDPRules, p.FirewallProfile,
		p.IPPool, p.IPv6Pool, p.RegionID, p.PolicyID, p.Hash, p.UpdatedAt,
	)
	return err
}

// UpdatePolicyID persists a freshly minted mkey onto every profile sharing
// the given hash, so siblings created via the "shared policy" path (S2) see
// the same policy_id as the triggering login.
func (r *ProfileRepository) UpdatePolicyID(ctx context.Context, hash string, policyID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE fw_profiles SET policy_id = $1, updated_at = $2 WHERE hash = $3`,
		policyID, time.Now().UTC(), hash,
	)
	return err
}

// Delete removes a profile by id.
func (r *ProfileRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM fw_profiles WHERE id = $1`, id)
	return err
}

// GetByID retrieves a profile by id. Returns (nil, nil) if not found.
func (r *ProfileRepository) GetByID(ctx context.Context, id int64) (*domain.FirewallProfile, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectProfileColumns+` WHERE id = $1`, id))
}

// GetByLogin retrieves a profile by login. Returns (nil, nil) if not found.
func (r *ProfileRepository) GetByLogin(ctx context.Context, login string) (*domain.FirewallProfile, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectProfileColumns+` WHERE login = $1`, login))
}

// List returns a page of profiles, optionally filtered by login.
func (r *ProfileRepository) List(ctx context.Context, filter domain.FirewallProfileFilter) (*domain.FirewallProfilePage, error) {
	var where string
	var args []interface{}
	if filter.Login != "" {
		where = ` WHERE login = $1`
		args = append(args, filter.Login)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM fw_profiles` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count fw_profiles: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	argNum := len(args) + 1
	query := fmt.Sprintf("%s%s ORDER BY id LIMIT $%d OFFSET $%d", selectProfileColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fw_profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.FirewallProfile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}

	return &domain.FirewallProfilePage{
		Profiles: profiles,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		HasMore:  int64(offset+len(profiles)) < total,
	}, nil
}

// PolicyIDByHash returns the policy_id stored on any profile whose hash
// equals the given hash, or nil if none.
func (r *ProfileRepository) PolicyIDByHash(ctx context.Context, hash string) (*int64, error) {
	var policyID sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT policy_id FROM fw_profiles WHERE hash = $1 AND policy_id IS NOT NULL LIMIT 1`,
		hash,
	).Scan(&policyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query policy_id by hash: %w", err)
	}
	if !policyID.Valid {
		return nil, nil
	}
	v := policyID.Int64
	return &v, nil
}

// PolicyIDExists reports whether the given policy_id currently appears on
// at least one profile row.
func (r *ProfileRepository) PolicyIDExists(ctx context.Context, policyID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM fw_profiles WHERE policy_id = $1)`,
		policyID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query policy_id existence: %w", err)
	}
	return exists, nil
}

const selectProfileColumns = `
	SELECT id, login, name, tcp_rules, udp_rules, firewall_profile,
		   ip_pool, ip_v6_pool, region_id, policy_id, hash, created_at, updated_at
	FROM fw_profiles`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ProfileRepository) scanOne(row *sql.Row) (*domain.FirewallProfile, error) {
	p, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query fw_profiles: %w", err)
	}
	return p, nil
}

func scanProfileRow(row rowScanner) (*domain.FirewallProfile, error) {
	var p domain.FirewallProfile
	var policyID sql.NullInt64
	err := row.Scan(
		&p.ID, &p.Login, &p.Name, &p.TCPRules, &p.UDPRules, &p.FirewallProfile,
		&p.IPPool, &p.IPv6Pool, &p.RegionID, &policyID, &p.Hash, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if policyID.Valid {
		p.PolicyID = &policyID.Int64
	}
	return &p, nil
}
