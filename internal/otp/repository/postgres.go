package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"whatsapp-otp-gateway/internal/otp/domain"
)

const codeColumns = `id, session_id, phone_number, code, status, message_id, company_name,
	expires_at, verified_at, attempts, max_attempts, created_at`

// PostgresRepository persists verification codes in the verification_codes table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a verification-code repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the record. The record must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Code) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_codes
			(id, session_id, phone_number, code, status, message_id, company_name,
			 expires_at, verified_at, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.SessionID, c.PhoneNumber, c.Code, string(c.Status),
		nullString(c.MessageID), nullString(c.CompanyName),
		c.ExpiresAt, timeToNullTime(c.VerifiedAt), c.Attempts, c.MaxAttempts, c.CreatedAt,
	)
	return err
}

// FindValid returns the newest still-verifiable record for phone with a matching
// code, or nil when none qualifies. It returns an error only for database
// failures, not for missing rows.
func (r *PostgresRepository) FindValid(ctx context.Context, phoneNumber, code string) (*domain.Code, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+codeColumns+`
		FROM verification_codes
		WHERE phone_number = $1 AND code = $2 AND status = 'sent'
		  AND expires_at > now() AND attempts < max_attempts
		ORDER BY created_at DESC
		LIMIT 1`,
		phoneNumber, code,
	)
	return scanCode(row)
}

// RecentFor returns the most recent record for phone created at or after since,
// optionally narrowed to one session.
func (r *PostgresRepository) RecentFor(ctx context.Context, phoneNumber, sessionID string, since time.Time) (*domain.Code, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+codeColumns+`
		FROM verification_codes
		WHERE phone_number = $1 AND created_at >= $2
		  AND ($3 = '' OR session_id = $3)
		ORDER BY created_at DESC
		LIMIT 1`,
		phoneNumber, since, sessionID,
	)
	return scanCode(row)
}

// AttemptVerify applies one verification attempt as a single guarded UPDATE:
// the eligibility predicate sits in the WHERE clause, so a record that was
// concurrently resolved or exhausted matches zero rows and the attempt is not
// counted. Exactly one concurrent caller can move a record to verified.
func (r *PostgresRepository) AttemptVerify(ctx context.Context, id, input string) (*domain.Code, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE verification_codes SET
			attempts = attempts + 1,
			status = CASE
				WHEN code = $2 THEN 'verified'
				WHEN attempts + 1 >= max_attempts THEN 'expired'
				ELSE status
			END,
			verified_at = CASE WHEN code = $2 THEN now() ELSE verified_at END
		WHERE id = $1 AND status = 'sent' AND expires_at > now() AND attempts < max_attempts
		RETURNING `+codeColumns,
		id, input,
	)
	return scanCode(row)
}

// ExpireOverdue transitions every sent record past its expiry to expired.
func (r *PostgresRepository) ExpireOverdue(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_codes SET status = 'expired'
		WHERE status = 'sent' AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireByPhone force-expires every sent record for phone. An empty sessionID
// matches all sessions.
func (r *PostgresRepository) ExpireByPhone(ctx context.Context, phoneNumber, sessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_codes SET status = 'expired'
		WHERE phone_number = $1 AND status = 'sent'
		  AND ($2 = '' OR session_id = $2)`,
		phoneNumber, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StatsFor returns per-status counts for phone since the given time.
func (r *PostgresRepository) StatsFor(ctx context.Context, phoneNumber string, since time.Time) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM verification_codes
		WHERE phone_number = $1 AND created_at >= $2
		GROUP BY status`,
		phoneNumber, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[domain.Status(status)] = count
	}
	return out, rows.Err()
}

// DeleteOlderThan removes records created before cutoff.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM verification_codes WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanCode(row *sql.Row) (*domain.Code, error) {
	var c domain.Code
	var status string
	var messageID, companyName sql.NullString
	var verifiedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.SessionID, &c.PhoneNumber, &c.Code, &status, &messageID, &companyName,
		&c.ExpiresAt, &verifiedAt, &c.Attempts, &c.MaxAttempts, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Status = domain.Status(status)
	if messageID.Valid {
		c.MessageID = messageID.String
	}
	if companyName.Valid {
		c.CompanyName = companyName.String
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		c.VerifiedAt = &t
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
