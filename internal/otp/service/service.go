// Package service implements the verification ledger: issuing, verifying,
// resending, and expiring one-time codes.
package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"whatsapp-otp-gateway/internal/activity"
	actdomain "whatsapp-otp-gateway/internal/activity/domain"
	"whatsapp-otp-gateway/internal/otp"
	"whatsapp-otp-gateway/internal/otp/domain"
	"whatsapp-otp-gateway/internal/otp/repository"
	"whatsapp-otp-gateway/internal/phone"
	"whatsapp-otp-gateway/internal/telemetry"
)

// Sender delivers a text message over a live session. The session manager
// satisfies this.
type Sender interface {
	SendText(ctx context.Context, sessionID, target, text string) (string, error)
}

// Config tunes code generation and the resend policy.
type Config struct {
	CodeLength   int           // default 6
	CodeTTL      time.Duration // default 5m
	ResendWindow time.Duration // default 5m
	MaxAttempts  int           // default 3
	CompanyName  string        // sender name used when a request omits one
}

func (c Config) withDefaults() Config {
	if c.CodeLength <= 0 {
		c.CodeLength = otp.DefaultLength
	}
	if c.CodeTTL <= 0 {
		c.CodeTTL = domain.DefaultTTL
	}
	if c.ResendWindow <= 0 {
		c.ResendWindow = domain.DefaultTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = domain.DefaultMaxAttempts
	}
	return c
}

// Service is the verification ledger.
type Service struct {
	repo     repository.Repository
	sender   Sender
	activity activity.Recorder
	metrics  *telemetry.Metrics
	cfg      Config
	nowF     func() time.Time
}

func New(repo repository.Repository, sender Sender, recorder activity.Recorder, metrics *telemetry.Metrics, cfg Config) *Service {
	if recorder == nil {
		recorder = activity.Nop{}
	}
	return &Service{
		repo:     repo,
		sender:   sender,
		activity: recorder,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		nowF:     time.Now,
	}
}

// Issue generates a fresh code, delivers it over the session, and persists the
// ledger record. A failed delivery is persisted with the failed status so the
// attempt still shows up in stats.
func (s *Service) Issue(ctx context.Context, sessionID, phoneNumber, companyName string) (*domain.Code, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, err
	}
	if companyName == "" {
		companyName = s.cfg.CompanyName
	}
	code, err := otp.Generate(s.cfg.CodeLength)
	if err != nil {
		return nil, err
	}
	now := s.nowF().UTC()
	rec := &domain.Code{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		PhoneNumber: normalized,
		Code:        code,
		Status:      domain.StatusSent,
		CompanyName: companyName,
		ExpiresAt:   now.Add(s.cfg.CodeTTL),
		MaxAttempts: s.cfg.MaxAttempts,
		CreatedAt:   now,
	}

	message := otp.Message(code, companyName, int(s.cfg.CodeTTL.Minutes()))
	messageID, sendErr := s.sender.SendText(ctx, sessionID, normalized, message)
	if sendErr != nil {
		rec.Status = domain.StatusFailed
		if err := s.repo.Create(ctx, rec); err != nil {
			log.Printf("otp: persist failed delivery %s: %v", normalized, err)
		}
		s.record(ctx, sessionID, normalized, "", actdomain.ActionOTPSend, actdomain.StatusError, sendErr.Error())
		return nil, sendErr
	}
	rec.MessageID = messageID

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.metrics.RecordCodeIssued(ctx, sessionID)
	s.record(ctx, sessionID, normalized, messageID, actdomain.ActionOTPSend, actdomain.StatusSuccess, "")
	return rec, nil
}

// Verify checks input against the newest valid code for the phone number.
// Exactly one caller can win for a given record even under concurrent
// attempts; the rest get NotVerifiableError. A wrong input is charged against
// the newest live record so guessing consumes the attempt budget.
func (s *Service) Verify(ctx context.Context, phoneNumber, input string) (*domain.Code, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, err
	}
	now := s.nowF().UTC()

	rec, err := s.repo.FindValid(ctx, normalized, input)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, s.chargeMismatch(ctx, normalized, input, now)
	}

	updated, err := s.repo.AttemptVerify(ctx, rec.ID, input)
	if err != nil {
		return nil, err
	}
	if updated == nil || updated.Status != domain.StatusVerified {
		// Lost a concurrent race or the record expired between read and write.
		s.metrics.RecordCodeFailed(ctx, rec.SessionID)
		s.record(ctx, rec.SessionID, normalized, "", actdomain.ActionOTPVerify, actdomain.StatusError, "code no longer verifiable")
		return nil, notVerifiable(updated, rec)
	}
	s.metrics.RecordCodeVerified(ctx, updated.SessionID)
	s.record(ctx, updated.SessionID, normalized, updated.MessageID, actdomain.ActionOTPVerify, actdomain.StatusSuccess, "")
	return updated, nil
}

// chargeMismatch counts a wrong input against the newest still-verifiable
// record and reports why verification failed.
func (s *Service) chargeMismatch(ctx context.Context, normalized, input string, now time.Time) error {
	recent, err := s.repo.RecentFor(ctx, normalized, "", now.Add(-s.cfg.CodeTTL))
	if err != nil {
		return err
	}
	sessionID := ""
	if recent != nil {
		sessionID = recent.SessionID
	}
	if recent != nil && recent.CanVerify(now) {
		if updated, err := s.repo.AttemptVerify(ctx, recent.ID, input); err == nil && updated != nil {
			recent = updated
		}
	}
	s.metrics.RecordCodeFailed(ctx, sessionID)
	s.record(ctx, sessionID, normalized, "", actdomain.ActionOTPVerify, actdomain.StatusError, "code mismatch")
	return notVerifiable(recent, nil)
}

// Resend issues a fresh code unless a valid unexpired one still exists, in
// which case RateLimitedError reports the remaining wait.
func (s *Service) Resend(ctx context.Context, sessionID, phoneNumber, companyName string) (*domain.Code, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, err
	}
	now := s.nowF().UTC()
	recent, err := s.repo.RecentFor(ctx, normalized, sessionID, now.Add(-s.cfg.ResendWindow))
	if err != nil {
		return nil, err
	}
	if recent != nil && recent.Status == domain.StatusSent && !recent.IsExpired(now) {
		wait := recent.ExpiresAt.Sub(now)
		if wait <= 0 {
			wait = time.Second
		}
		return nil, &RateLimitedError{Wait: wait}
	}
	return s.Issue(ctx, sessionID, normalized, companyName)
}

// Status returns the most recent code record for the phone number, optionally
// narrowed to one session. ErrNotFound when none exists.
func (s *Service) Status(ctx context.Context, phoneNumber, sessionID string) (*domain.Code, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.RecentFor(ctx, normalized, sessionID, time.Time{})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ExpireNow force-expires any outstanding sent codes for the phone number.
func (s *Service) ExpireNow(ctx context.Context, phoneNumber, sessionID string) (int64, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return 0, err
	}
	return s.repo.ExpireByPhone(ctx, normalized, sessionID)
}

// Stats returns per-status counts for the phone number over the trailing window.
func (s *Service) Stats(ctx context.Context, phoneNumber string, window time.Duration) (map[domain.Status]int, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, err
	}
	return s.repo.StatsFor(ctx, normalized, s.nowF().UTC().Add(-window))
}

// ExpireOverdue sweeps all overdue sent records to expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	return s.repo.ExpireOverdue(ctx)
}

// PurgeOlderThan removes records created before cutoff (retention cleanup).
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, cutoff)
}

// StartExpiryLoop runs ExpireOverdue on the given interval until ctx ends, so
// an unverified code becomes expired promptly without waiting for an access.
func (s *Service) StartExpiryLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.repo.ExpireOverdue(ctx)
				if err != nil {
					log.Printf("otp: expiry sweep: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("otp: expired %d overdue codes", n)
				}
			}
		}
	}()
}

func notVerifiable(updated, fallback *domain.Code) error {
	rec := updated
	if rec == nil {
		rec = fallback
	}
	if rec == nil {
		return &NotVerifiableError{}
	}
	return &NotVerifiableError{Status: rec.Status, Attempts: rec.Attempts, MaxAttempts: rec.MaxAttempts}
}

func (s *Service) record(ctx context.Context, sessionID, phoneNumber, messageID, action, status, errMsg string) {
	s.activity.Record(ctx, actdomain.Record{
		SessionID:    sessionID,
		Action:       action,
		Status:       status,
		PhoneNumber:  phoneNumber,
		MessageID:    messageID,
		ErrorMessage: errMsg,
	})
}
