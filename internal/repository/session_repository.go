package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/solidex/shpak/internal/domain"
)

// SessionRepository handles RADIUS_Sessions persistence. At most one live
// row exists per UserName: Insert upserts on conflict, Delete removes it.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert records an Accounting-Start, replacing any prior row for the same
// UserName (a retransmitted Start is idempotent).
func (r *SessionRepository) Insert(ctx context.Context, s *domain.RadiusSession) error {
	query := `
		INSERT INTO radius_sessions (
			user_name, "timestamp", acct_status_type, framed_ip_address,
			delegated_ipv6_prefix, nas_ip_address
		) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_name) DO UPDATE SET
			"timestamp" = EXCLUDED."timestamp",
			acct_status_type = EXCLUDED.acct_status_type,
			framed_ip_address = EXCLUDED.framed_ip_address,
			delegated_ipv6_prefix = EXCLUDED.delegated_ipv6_prefix,
			nas_ip_address = EXCLUDED.nas_ip_address`

	_, err := r.db.ExecContext(ctx, query,
		s.UserName, s.Timestamp, s.AcctStatusType, s.FramedIPAddress,
		s.DelegatedIPv6Prefix, s.NASIPAddress,
	)
	if err != nil {
		return fmt.Errorf("insert radius_session: %w", err)
	}
	return nil
}

// Delete removes the live session row for a UserName, on Accounting-Stop.
func (r *SessionRepository) Delete(ctx context.Context, userName string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM radius_sessions WHERE user_name = $1`, userName)
	if err != nil {
		return fmt.Errorf("delete radius_session: %w", err)
	}
	return nil
}

// GetByUserName returns the live session for a UserName, or (nil, nil) if
// none exists.
func (r *SessionRepository) GetByUserName(ctx context.Context, userName string) (*domain.RadiusSession, error) {
	query := `
		SELECT user_name, "timestamp", acct_status_type, framed_ip_address,
			   delegated_ipv6_prefix, nas_ip_address
		FROM radius_sessions WHERE user_name = $1`

	var s domain.RadiusSession
	err := r.db.QueryRowContext(ctx, query, userName).Scan(
		&s.UserName, &s.Timestamp, &s.AcctStatusType, &s.FramedIPAddress,
		&s.DelegatedIPv6Prefix, &s.NASIPAddress,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query radius_session: %w", err)
	}
	return &s, nil
}
