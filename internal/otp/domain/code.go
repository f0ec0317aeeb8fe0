// Package domain holds the verification-code record and its state rules.
package domain

import "time"

// Status is the lifecycle state of a verification code.
type Status string

const (
	// StatusSent: issued and delivered, awaiting verification.
	StatusSent Status = "sent"
	// StatusVerified: matched by a verification attempt. Final.
	StatusVerified Status = "verified"
	// StatusExpired: timed out or attempt budget exhausted. Final.
	StatusExpired Status = "expired"
	// StatusFailed: delivery failed. Final.
	StatusFailed Status = "failed"
)

// DefaultMaxAttempts is the verification attempt budget when none is configured.
const DefaultMaxAttempts = 3

// DefaultTTL is the code lifetime when none is configured.
const DefaultTTL = 5 * time.Minute

// Code is one issued verification code. Once Status leaves StatusSent the
// record is immutable.
type Code struct {
	ID          string
	SessionID   string
	PhoneNumber string
	Code        string
	Status      Status
	MessageID   string
	CompanyName string
	ExpiresAt   time.Time
	VerifiedAt  *time.Time // nil until verified
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
}

// IsExpired reports whether the code's lifetime has passed at now.
func (c *Code) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// CanVerify reports whether a verification attempt against this record is
// still allowed: status sent, unexpired, attempts below the budget.
func (c *Code) CanVerify(now time.Time) bool {
	return c.Status == StatusSent && !c.IsExpired(now) && c.Attempts < c.MaxAttempts
}

// Verify applies one verification attempt to the record in place and reports
// whether input matched. Callers needing concurrency safety must serialize
// access; the Postgres repository performs the equivalent mutation as a single
// guarded UPDATE instead.
//
// On match: Status becomes verified and VerifiedAt is set. On mismatch: the
// attempt is counted, and exhausting the budget expires the record.
func (c *Code) Verify(input string, now time.Time) bool {
	if !c.CanVerify(now) {
		return false
	}
	c.Attempts++
	if c.Code == input {
		c.Status = StatusVerified
		t := now
		c.VerifiedAt = &t
		return true
	}
	if c.Attempts >= c.MaxAttempts {
		c.Status = StatusExpired
	}
	return false
}
