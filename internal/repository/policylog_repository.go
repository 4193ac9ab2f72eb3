package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/solidex/shpak/internal/domain"
)

// PolicyLogRepository handles PolicyLogs persistence, the audit trail the
// reconciler appends one row to per handled signal.
type PolicyLogRepository struct {
	db *sql.DB
}

// NewPolicyLogRepository creates a new policy log repository.
func NewPolicyLogRepository(db *sql.DB) *PolicyLogRepository {
	return &PolicyLogRepository{db: db}
}

// Append records one reconciler attempt outcome.
func (r *PolicyLogRepository) Append(ctx context.Context, l *domain.PolicyLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO policy_logs (id, "user", "timestamp", policy_id, result, http_status, fg_address)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.User, l.Timestamp, l.PolicyID, l.Result, l.HTTPStatus, l.FGAddress,
	)
	if err != nil {
		return fmt.Errorf("insert policy_log: %w", err)
	}
	return nil
}

// ListByUser returns the policy log history for one login, newest first.
func (r *PolicyLogRepository) ListByUser(ctx context.Context, user string) ([]domain.PolicyLog, error) {
	query := `
		SELECT id, "user", "timestamp", policy_id, result, http_status, fg_address
		FROM policy_logs WHERE "user" = $1 ORDER BY "timestamp" DESC`

	rows, err := r.db.QueryContext(ctx, query, user)
	if err != nil {
		return nil, fmt.Errorf("query policy_logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.PolicyLog
	for rows.Next() {
		var l domain.PolicyLog
		var policyID sql.NullInt64
		if err := rows.Scan(&l.ID, &l.User, &l.Timestamp, &policyID, &l.Result, &l.HTTPStatus, &l.FGAddress); err != nil {
			return nil, fmt.Errorf("scan policy_log: %w", err)
		}
		if policyID.Valid {
			l.PolicyID = &policyID.Int64
		}
		logs = append(logs, l)
	}
	return logs, nil
}
