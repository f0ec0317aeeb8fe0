// Package activity records the gateway's audit trail: one entry per session
// transition and per message/verification operation. Recording is best-effort
// and never blocks or fails the caller.
package activity

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"whatsapp-otp-gateway/internal/activity/domain"
	activityrepo "whatsapp-otp-gateway/internal/activity/repository"
)

// recordTimeout is the max time allowed for one async persist or emit.
const recordTimeout = 5 * time.Second

// Recorder writes a single activity record. Implementations must be
// best-effort: failures are logged locally and never surface to the caller.
type Recorder interface {
	Record(ctx context.Context, rec domain.Record)
}

// Emitter forwards an activity record to an external stream (Kafka, OTel logs).
// Best-effort; callers log and ignore errors.
type Emitter interface {
	Emit(ctx context.Context, rec *domain.Record) error
}

// Logger implements Recorder by persisting to the repository and fanning out
// to optional emitters, all off the caller's goroutine.
type Logger struct {
	repo     activityrepo.Repository
	emitters []Emitter
	nowF     func() time.Time
}

// NewLogger returns a Recorder that persists to repo and forwards to the given
// emitters. repo may be nil (emit-only); nil emitters are skipped.
func NewLogger(repo activityrepo.Repository, emitters ...Emitter) *Logger {
	kept := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			kept = append(kept, e)
		}
	}
	return &Logger{repo: repo, emitters: kept, nowF: time.Now}
}

// Record persists and emits the record asynchronously. It fills ID and
// CreatedAt when unset and returns immediately; the write uses its own
// context so request cancellation does not abort an in-flight record.
func (l *Logger) Record(ctx context.Context, rec domain.Record) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.nowF().UTC()
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if l.repo != nil {
			if err := l.repo.Create(writeCtx, &rec); err != nil {
				log.Printf("activity: failed to persist %s/%s for session %s: %v",
					rec.Action, rec.Status, rec.SessionID, err)
			}
		}
		for _, e := range l.emitters {
			if err := e.Emit(writeCtx, &rec); err != nil {
				log.Printf("activity: emit failed for %s: %v", rec.Action, err)
			}
		}
	}()
}

// Nop is a Recorder that drops every record. Useful in tests and when the
// gateway runs without a database.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, domain.Record) {}
