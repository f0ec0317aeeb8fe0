package repository

import (
	"context"
	"time"

	"whatsapp-otp-gateway/internal/otp/domain"
)

// Repository defines persistence for verification codes.
//
// AttemptVerify must apply the eligibility check and the attempt mutation as a
// single atomic step: under concurrent attempts against one record, exactly one
// caller may observe a successful match and attempts are never double-counted.
type Repository interface {
	Create(ctx context.Context, c *domain.Code) error
	// FindValid returns the most recently created record for phone with a
	// matching code that is still verifiable (sent, unexpired, attempts below
	// budget), or nil when none qualifies.
	FindValid(ctx context.Context, phoneNumber, code string) (*domain.Code, error)
	// RecentFor returns the most recent record for phone created at or after
	// since, optionally narrowed to one session (empty sessionID matches all).
	RecentFor(ctx context.Context, phoneNumber, sessionID string, since time.Time) (*domain.Code, error)
	// AttemptVerify applies one verification attempt to the record with the
	// given id and returns the updated record, or nil when the record was no
	// longer eligible (already resolved, expired, or attempts exhausted).
	AttemptVerify(ctx context.Context, id, input string) (*domain.Code, error)
	// ExpireOverdue transitions every sent record past its expiry to expired
	// and returns how many rows changed.
	ExpireOverdue(ctx context.Context) (int64, error)
	// ExpireByPhone force-expires every sent record for phone, optionally
	// narrowed to one session, and returns how many rows changed.
	ExpireByPhone(ctx context.Context, phoneNumber, sessionID string) (int64, error)
	// StatsFor returns per-status counts for phone over the trailing window.
	StatsFor(ctx context.Context, phoneNumber string, since time.Time) (map[domain.Status]int, error)
	// DeleteOlderThan removes records created before cutoff (retention cleanup).
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
