// Package repository persists session summaries. The in-memory registry stays
// authoritative for connection state; the durable rows exist for dashboards
// and post-mortem inspection.
package repository

import (
	"context"

	"whatsapp-otp-gateway/internal/session/domain"
)

// Repository stores one summary row per session, keyed by session ID.
type Repository interface {
	// Upsert inserts or replaces the summary row for sess.SessionID.
	Upsert(ctx context.Context, sess *domain.Session) error
	// FindByID returns the summary for sessionID, or nil when absent.
	FindByID(ctx context.Context, sessionID string) (*domain.Session, error)
	List(ctx context.Context) ([]*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}
