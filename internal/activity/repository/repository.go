package repository

import (
	"context"
	"time"

	"whatsapp-otp-gateway/internal/activity/domain"
)

// Repository defines persistence for activity records.
type Repository interface {
	Create(ctx context.Context, rec *domain.Record) error
	ListBySession(ctx context.Context, sessionID string, limit int32) ([]*domain.Record, error)
	// MessageStats returns per-action counts for one session (message_send,
	// otp_send, message_receive, ...).
	MessageStats(ctx context.Context, sessionID string) (map[string]int, error)
	// DeleteOlderThan removes records created before cutoff (retention cleanup).
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
