package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"whatsapp-otp-gateway/internal/session/domain"
)

const sessionColumns = `session_id, state, remote_user_id, remote_user_name, last_error,
	connected_at, disconnected_at, last_seen_at, created_at, updated_at`

// PostgresRepository persists session summaries in the sessions table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, sess *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions
			(session_id, state, remote_user_id, remote_user_name, last_error,
			 connected_at, disconnected_at, last_seen_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			state = EXCLUDED.state,
			remote_user_id = EXCLUDED.remote_user_id,
			remote_user_name = EXCLUDED.remote_user_name,
			last_error = EXCLUDED.last_error,
			connected_at = EXCLUDED.connected_at,
			disconnected_at = EXCLUDED.disconnected_at,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = EXCLUDED.updated_at`,
		sess.SessionID, string(sess.State),
		nullString(sess.RemoteUserID), nullString(sess.RemoteUserName), nullString(sess.LastError),
		ptrToNullTime(sess.ConnectedAt), ptrToNullTime(sess.DisconnectedAt),
		sess.LastSeenAt, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

func (r *PostgresRepository) FindByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE session_id = $1`,
		sessionID,
	)
	return scanSession(row)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		ORDER BY session_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess                             domain.Session
		state                            string
		remoteID, remoteName, lastError  sql.NullString
		connectedAt, disconnectedAt      sql.NullTime
	)
	err := row.Scan(
		&sess.SessionID, &state, &remoteID, &remoteName, &lastError,
		&connectedAt, &disconnectedAt, &sess.LastSeenAt, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.State = domain.State(state)
	sess.RemoteUserID = remoteID.String
	sess.RemoteUserName = remoteName.String
	sess.LastError = lastError.String
	if connectedAt.Valid {
		t := connectedAt.Time
		sess.ConnectedAt = &t
	}
	if disconnectedAt.Valid {
		t := disconnectedAt.Time
		sess.DisconnectedAt = &t
	}
	return &sess, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ptrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
