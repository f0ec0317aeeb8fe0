package repository

import (
	"context"
	"database/sql"
	"time"

	"whatsapp-otp-gateway/internal/activity/domain"
)

// PostgresRepository persists activity records in the activity_logs table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an activity repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the record. The record must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, rec *domain.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_logs
			(id, session_id, action, status, phone_number, message_id, detail, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.SessionID, rec.Action, rec.Status,
		nullString(rec.PhoneNumber), nullString(rec.MessageID),
		nullString(rec.Detail), nullString(rec.ErrorMessage), rec.CreatedAt,
	)
	return err
}

// ListBySession returns the newest records for sessionID, up to limit.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string, limit int32) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, action, status, phone_number, message_id, detail, error_message, created_at
		FROM activity_logs
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var rec domain.Record
		var phone, msgID, detail, errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Action, &rec.Status,
			&phone, &msgID, &detail, &errMsg, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.PhoneNumber = phone.String
		rec.MessageID = msgID.String
		rec.Detail = detail.String
		rec.ErrorMessage = errMsg.String
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// MessageStats returns per-action counts for one session.
func (r *PostgresRepository) MessageStats(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT action, COUNT(*)
		FROM activity_logs
		WHERE session_id = $1
		GROUP BY action`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		out[action] = count
	}
	return out, rows.Err()
}

// DeleteOlderThan removes records created before cutoff.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM activity_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
