package service

import (
	"errors"
	"fmt"
	"time"

	"whatsapp-otp-gateway/internal/otp/domain"
)

// ErrNotFound means no verification code exists for the phone number.
var ErrNotFound = errors.New("otp: no verification code found")

// NotVerifiableError means a verification attempt hit a record that is
// expired, exhausted, or already resolved. It carries the record's current
// state so the caller can explain the failure.
type NotVerifiableError struct {
	Status      domain.Status
	Attempts    int
	MaxAttempts int
}

func (e *NotVerifiableError) Error() string {
	if e.Status == "" {
		return "otp: invalid or expired code"
	}
	return fmt.Sprintf("otp: code not verifiable (status=%s attempts=%d/%d)",
		e.Status, e.Attempts, e.MaxAttempts)
}

// RateLimitedError means a resend was requested while a valid unexpired code
// still exists. Wait is the time remaining until the code expires.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("otp: resend rate limited, wait %s", e.Wait.Round(time.Second))
}
