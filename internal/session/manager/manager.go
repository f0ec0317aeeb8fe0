// Package manager implements the per-session connection state machine. It
// opens transport clients, consumes their event streams, schedules bounded
// reconnects, and keeps the registry and durable summaries in step.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"whatsapp-otp-gateway/internal/activity"
	actdomain "whatsapp-otp-gateway/internal/activity/domain"
	"whatsapp-otp-gateway/internal/pairing"
	"whatsapp-otp-gateway/internal/phone"
	"whatsapp-otp-gateway/internal/session/domain"
	"whatsapp-otp-gateway/internal/session/registry"
	"whatsapp-otp-gateway/internal/telemetry"
	"whatsapp-otp-gateway/internal/transport"
)

var (
	ErrAlreadyExists = errors.New("session: already exists")
	ErrNotFound      = errors.New("session: not found")
	ErrNotConnected  = errors.New("session: not connected")
)

const persistTimeout = 5 * time.Second

// SummaryStore persists durable session summaries. Optional; the in-memory
// registry stays authoritative.
type SummaryStore interface {
	Upsert(ctx context.Context, sess *domain.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// Notifier receives connection and inbound-message events for external
// delivery. Implementations must not block; the manager calls them from its
// event loop.
type Notifier interface {
	NotifyConnection(sessionID string, state domain.State, detail string)
	NotifyInbound(sessionID string, msg transport.InboundMessage)
}

// Config tunes the reconnect policy.
type Config struct {
	BaseDelay    time.Duration // doubled per attempt, default 3s
	MaxAttempts  int           // default 5
	RestartDelay time.Duration // fixed delay for restart-class closes, default 3s
	DialTimeout  time.Duration // transport handshake bound, default 60s
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 3 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 3 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 60 * time.Second
	}
	return c
}

// Deps are the manager's collaborators. Registry, Dialer, Credentials, and
// Pairing are required; the rest are optional.
type Deps struct {
	Registry    *registry.Registry
	Dialer      transport.Dialer
	Credentials transport.CredentialStore
	Pairing     *pairing.Cache
	Store       SummaryStore
	Activity    activity.Recorder
	Metrics     *telemetry.Metrics
	Classifier  *Classifier
	Notifier    Notifier
	NewTimer    func(d time.Duration, fire func()) timer
}

// entry is the runtime bookkeeping for one live session. gen takes a fresh
// value from the manager's sequence on every dial so events from a replaced
// client (or a removed session's earlier life) are dropped.
type entry struct {
	gen      uint64
	client   transport.Client
	attempts int
}

// Manager is the connection state machine for all sessions.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	genSeq  uint64 // generation source; never reused across session re-creates

	reg        *registry.Registry
	dialer     transport.Dialer
	creds      transport.CredentialStore
	cache      *pairing.Cache
	store      SummaryStore
	activity   activity.Recorder
	metrics    *telemetry.Metrics
	classifier *Classifier
	notifier   Notifier
	sched      *scheduler
	cfg        Config
	nowF       func() time.Time
}

func New(deps Deps, cfg Config) *Manager {
	if deps.Activity == nil {
		deps.Activity = activity.Nop{}
	}
	if deps.Classifier == nil {
		deps.Classifier = NewClassifier([]int{401}, []int{515})
	}
	return &Manager{
		entries:    make(map[string]*entry),
		reg:        deps.Registry,
		dialer:     deps.Dialer,
		creds:      deps.Credentials,
		cache:      deps.Pairing,
		store:      deps.Store,
		activity:   deps.Activity,
		metrics:    deps.Metrics,
		classifier: deps.Classifier,
		notifier:   deps.Notifier,
		sched:      newScheduler(deps.NewTimer),
		cfg:        cfg.withDefaults(),
		nowF:       time.Now,
	}
}

// CreateSession registers a new session and starts connecting. The connect is
// asynchronous; the pairing artifact and the Connected state arrive via the
// transport's event stream.
func (m *Manager) CreateSession(ctx context.Context, sessionID string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[sessionID]; ok {
		return domain.Session{}, ErrAlreadyExists
	}
	now := m.nowF().UTC()
	sess := domain.Session{
		SessionID:  sessionID,
		State:      domain.StateIdle,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	e := &entry{}
	m.entries[sessionID] = e
	m.reg.Put(sess)
	m.record(sessionID, actdomain.ActionSessionCreate, actdomain.StatusSuccess, "", "")

	m.connectLocked(sessionID, e)
	snapshot, _ := m.reg.Get(sessionID)
	return snapshot, nil
}

// GetSession returns a snapshot of the session, or false when absent.
func (m *Manager) GetSession(sessionID string) (domain.Session, bool) {
	return m.reg.Get(sessionID)
}

// ListSessions returns a point-in-time snapshot of all live sessions.
func (m *Manager) ListSessions() []domain.Session {
	return m.reg.List()
}

// PairingArtifact returns the current pairing artifact for the session, if the
// session exists and an unexpired artifact is cached.
func (m *Manager) PairingArtifact(sessionID string) (pairing.Artifact, bool) {
	m.mu.Lock()
	_, ok := m.entries[sessionID]
	m.mu.Unlock()
	if !ok {
		return pairing.Artifact{}, false
	}
	return m.cache.Get(sessionID)
}

// RemoveSession tears the session down: the pending retry is cancelled before
// returning, the client closed, credentials and cached artifacts deleted.
func (m *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.sched.cancel(sessionID)
	e.gen++ // invalidate in-flight dials and event loops
	client := e.client
	delete(m.entries, sessionID)
	m.reg.Remove(sessionID)
	m.cache.Delete(sessionID)
	m.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	if err := m.creds.Delete(sessionID); err != nil {
		log.Printf("session: delete credentials %s: %v", sessionID, err)
	}
	if m.store != nil {
		dbCtx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()
		if err := m.store.Delete(dbCtx, sessionID); err != nil {
			log.Printf("session: delete summary %s: %v", sessionID, err)
		}
	}
	m.record(sessionID, actdomain.ActionSessionDelete, actdomain.StatusSuccess, "", "")
	return nil
}

// RestartSession closes the current client and re-dials with the stored
// credentials. The attempt counter resets.
func (m *Manager) RestartSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[sessionID]
	if !ok {
		return ErrNotFound
	}
	m.sched.cancel(sessionID)
	if e.client != nil {
		_ = e.client.Close()
		e.client = nil
	}
	e.attempts = 0

	sess, _ := m.reg.Get(sessionID)
	if sess.State != domain.StateDisconnected && sess.State != domain.StateIdle {
		m.transitionLocked(&sess, domain.StateDisconnected, "restart requested")
		m.reg.Put(sess)
	}
	m.record(sessionID, actdomain.ActionSessionRestart, actdomain.StatusSuccess, "", "")
	m.connectLocked(sessionID, e)
	return nil
}

// SendText sends a text message over the session's connection. The target is
// normalized to a full JID. Fails with ErrNotConnected unless the session is
// in the Connected state.
func (m *Manager) SendText(ctx context.Context, sessionID, target, text string) (string, error) {
	normalized, err := phone.Normalize(target)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if !ok {
		m.mu.Unlock()
		return "", ErrNotFound
	}
	sess, _ := m.reg.Get(sessionID)
	client := e.client
	m.mu.Unlock()

	if sess.State != domain.StateConnected || client == nil {
		m.record(sessionID, actdomain.ActionMessageSend, actdomain.StatusError, normalized, ErrNotConnected.Error())
		return "", ErrNotConnected
	}

	messageID, err := client.Send(ctx, phone.JID(normalized), text)
	if err != nil {
		m.record(sessionID, actdomain.ActionMessageSend, actdomain.StatusError, normalized, err.Error())
		return "", fmt.Errorf("send to %s: %w", normalized, err)
	}
	m.metrics.RecordMessageSent(ctx, sessionID)
	m.activity.Record(ctx, actdomain.Record{
		SessionID:   sessionID,
		Action:      actdomain.ActionMessageSend,
		Status:      actdomain.StatusSuccess,
		PhoneNumber: normalized,
		MessageID:   messageID,
	})
	return messageID, nil
}

// connectLocked moves the session into Connecting and starts an asynchronous
// dial. Caller holds m.mu.
func (m *Manager) connectLocked(sessionID string, e *entry) {
	m.genSeq++
	e.gen = m.genSeq
	gen := e.gen
	e.client = nil

	sess, ok := m.reg.Get(sessionID)
	if !ok {
		return
	}
	m.transitionLocked(&sess, domain.StateConnecting, "")
	m.reg.Put(sess)
	m.persist(sess)

	go m.dial(sessionID, gen)
}

// dial opens a transport client outside the lock and attaches it if the
// session is still current. Dial failures are treated as transient closes.
func (m *Manager) dial(sessionID string, gen uint64) {
	creds, err := m.creds.Load(sessionID)
	if err != nil {
		log.Printf("session: load credentials %s: %v", sessionID, err)
		creds = nil
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	client, dialErr := m.dialer.Dial(dialCtx, creds)
	cancel()

	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if !ok || e.gen != gen {
		m.mu.Unlock()
		if client != nil {
			_ = client.Close()
		}
		return
	}
	if dialErr != nil {
		m.handleCloseLocked(sessionID, e, gen, 0, fmt.Sprintf("dial: %v", dialErr))
		m.mu.Unlock()
		return
	}
	e.client = client
	m.mu.Unlock()

	go m.consume(sessionID, gen, client)
}

// consume drains one client's event stream. Events for a single session are
// handled in arrival order; the loop exits when the client closes its channel.
func (m *Manager) consume(sessionID string, gen uint64, client transport.Client) {
	for ev := range client.Events() {
		m.handleEvent(sessionID, gen, ev)
	}
}

func (m *Manager) handleEvent(sessionID string, gen uint64, ev transport.Event) {
	// QR rendering is slow enough to matter; do it before taking the lock.
	var rendered string
	if ev.Type == transport.EventPairing {
		r, err := pairing.Render(ev.PairingPayload)
		if err != nil {
			log.Printf("session: render pairing artifact %s: %v", sessionID, err)
			m.record(sessionID, actdomain.ActionQRGenerate, actdomain.StatusError, "", err.Error())
			return
		}
		rendered = r
	}

	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if !ok || e.gen != gen {
		m.mu.Unlock()
		return // session removed or client replaced; stale event
	}
	sess, ok := m.reg.Get(sessionID)
	if !ok {
		m.mu.Unlock()
		return
	}

	if ev.Type == transport.EventCredentials {
		m.mu.Unlock()
		m.saveCredentials(sessionID, ev.Credentials)
		return
	}

	switch ev.Type {
	case transport.EventPairing:
		m.handlePairingLocked(&sess, rendered)
	case transport.EventOpened:
		m.handleOpenedLocked(&sess, e, ev.RemoteUser)
	case transport.EventClosed:
		m.handleCloseLocked(sessionID, e, gen, ev.Code, ev.Message)
	case transport.EventMessage:
		m.handleInboundLocked(&sess, ev.Inbound)
	}
	m.mu.Unlock()
}

// saveCredentials persists updated pairing credentials so the next dial, on
// any reconnect path, resumes the session instead of pairing from scratch.
func (m *Manager) saveCredentials(sessionID string, creds *transport.Credentials) {
	if creds == nil {
		return
	}
	if err := m.creds.Save(sessionID, creds); err != nil {
		log.Printf("session: save credentials %s: %v", sessionID, err)
	}
}

func (m *Manager) handlePairingLocked(sess *domain.Session, rendered string) {
	if sess.State != domain.StateConnecting && sess.State != domain.StateAwaitingPairing {
		return // pairing payloads are meaningless once connected or down
	}
	m.cache.Set(sess.SessionID, rendered)
	if sess.State == domain.StateConnecting {
		m.transitionLocked(sess, domain.StateAwaitingPairing, "")
		m.reg.Put(*sess)
		m.persist(*sess)
	}
	m.record(sess.SessionID, actdomain.ActionQRGenerate, actdomain.StatusSuccess, "", "")
}

func (m *Manager) handleOpenedLocked(sess *domain.Session, e *entry, user *transport.RemoteUser) {
	if sess.State != domain.StateConnected && !domain.CanTransition(sess.State, domain.StateConnected) {
		log.Printf("session: dropping open event for %s in state %s", sess.SessionID, sess.State)
		return
	}
	m.sched.cancel(sess.SessionID)
	m.cache.Delete(sess.SessionID)
	e.attempts = 0

	now := m.nowF().UTC()
	m.transitionLocked(sess, domain.StateConnected, "")
	if user != nil {
		sess.RemoteUserID = user.ID
		sess.RemoteUserName = user.Name
	}
	sess.LastError = ""
	sess.ConnectedAt = &now
	sess.DisconnectedAt = nil
	sess.LastSeenAt = now
	m.reg.Put(*sess)
	m.persist(*sess)

	m.record(sess.SessionID, actdomain.ActionConnectionOpen, actdomain.StatusSuccess, sess.RemoteUserID, "")
	m.notifyConnection(sess.SessionID, domain.StateConnected, "")
}

// handleCloseLocked drives the Disconnected transition and decides what comes
// next: terminate, fixed-delay restart, or backoff retry. Caller holds m.mu.
func (m *Manager) handleCloseLocked(sessionID string, e *entry, gen uint64, code int, message string) {
	sess, ok := m.reg.Get(sessionID)
	if !ok {
		return
	}
	e.client = nil
	now := m.nowF().UTC()
	m.transitionLocked(&sess, domain.StateDisconnected, message)
	sess.RemoteUserID = ""
	sess.RemoteUserName = ""
	sess.DisconnectedAt = &now
	sess.LastError = message
	m.reg.Put(sess)
	m.persist(sess)

	disp := m.classifier.Classify(code)
	m.activity.Record(context.Background(), actdomain.Record{
		SessionID:    sessionID,
		Action:       actdomain.ActionConnectionClose,
		Status:       actdomain.StatusError,
		Detail:       fmt.Sprintf("code=%d disposition=%s", code, disp),
		ErrorMessage: message,
	})
	m.notifyConnection(sessionID, domain.StateDisconnected, message)

	switch disp {
	case DispositionTerminal:
		m.terminateLocked(sessionID, &sess, e, message, true)
	case DispositionRestart:
		// Mid-pairing restart: fixed delay, attempt counter untouched.
		m.scheduleRetryLocked(sessionID, e, gen, m.cfg.RestartDelay)
	default:
		if e.attempts >= m.cfg.MaxAttempts {
			m.terminateLocked(sessionID, &sess, e, "reconnect attempts exhausted", false)
			return
		}
		delay := m.cfg.BaseDelay << e.attempts
		e.attempts++
		m.metrics.RecordReconnect(context.Background(), sessionID, e.attempts)
		m.record(sessionID, actdomain.ActionReconnect, actdomain.StatusSuccess,
			fmt.Sprintf("attempt=%d delay=%s", e.attempts, delay), "")
		m.scheduleRetryLocked(sessionID, e, gen, delay)
	}
}

func (m *Manager) scheduleRetryLocked(sessionID string, e *entry, gen uint64, delay time.Duration) {
	m.sched.schedule(sessionID, delay, func() { m.retry(sessionID, gen) })
}

// retry fires from the scheduler. It is a no-op when the session was removed,
// the client replaced, or the session is no longer Disconnected.
func (m *Manager) retry(sessionID string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[sessionID]
	if !ok || e.gen != gen {
		return
	}
	sess, ok := m.reg.Get(sessionID)
	if !ok || sess.State != domain.StateDisconnected {
		return
	}
	m.connectLocked(sessionID, e)
}

// terminateLocked makes the session Terminated: the registry entry is removed,
// the pairing artifact cleared, any pending retry cancelled. Credentials are
// wiped only for logged-out closes so a fresh CreateSession can reuse them
// after a retry exhaustion. The durable summary row keeps the terminated state.
func (m *Manager) terminateLocked(sessionID string, sess *domain.Session, e *entry, reason string, wipeCreds bool) {
	m.sched.cancel(sessionID)
	m.cache.Delete(sessionID)
	e.gen++
	if e.client != nil {
		_ = e.client.Close()
		e.client = nil
	}
	m.transitionLocked(sess, domain.StateTerminated, reason)
	sess.LastError = reason
	delete(m.entries, sessionID)
	m.reg.Remove(sessionID)
	m.persist(*sess)

	if wipeCreds {
		if err := m.creds.Delete(sessionID); err != nil {
			log.Printf("session: delete credentials %s: %v", sessionID, err)
		}
	}
	m.record(sessionID, actdomain.ActionConnectionClose, actdomain.StatusError, "terminated", reason)
	m.notifyConnection(sessionID, domain.StateTerminated, reason)
}

func (m *Manager) handleInboundLocked(sess *domain.Session, msg *transport.InboundMessage) {
	if msg == nil {
		return
	}
	sess.LastSeenAt = m.nowF().UTC()
	m.reg.Put(*sess)

	m.activity.Record(context.Background(), actdomain.Record{
		SessionID:   sess.SessionID,
		Action:      actdomain.ActionMessageReceive,
		Status:      actdomain.StatusSuccess,
		PhoneNumber: phone.FromJID(msg.From),
		MessageID:   msg.MessageID,
	})
	if m.notifier != nil {
		go m.notifier.NotifyInbound(sess.SessionID, *msg)
	}
}

// transitionLocked applies a state change if legal, logging and dropping it
// otherwise. Caller holds m.mu and is responsible for reg.Put.
func (m *Manager) transitionLocked(sess *domain.Session, to domain.State, detail string) {
	if sess.State == to {
		return
	}
	if !domain.CanTransition(sess.State, to) {
		log.Printf("session: illegal transition %s: %s -> %s (%s)", sess.SessionID, sess.State, to, detail)
		return
	}
	from := sess.State
	sess.State = to
	sess.UpdatedAt = m.nowF().UTC()
	m.metrics.RecordTransition(context.Background(), sess.SessionID, string(from), string(to))
}

// persist writes the summary row off the caller's goroutine; failures are
// logged and never surface.
func (m *Manager) persist(sess domain.Session) {
	if m.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := m.store.Upsert(ctx, &sess); err != nil {
			log.Printf("session: persist summary %s: %v", sess.SessionID, err)
		}
	}()
}

func (m *Manager) record(sessionID, action, status, detail, errMsg string) {
	m.activity.Record(context.Background(), actdomain.Record{
		SessionID:    sessionID,
		Action:       action,
		Status:       status,
		Detail:       detail,
		ErrorMessage: errMsg,
	})
}

func (m *Manager) notifyConnection(sessionID string, state domain.State, detail string) {
	if m.notifier == nil {
		return
	}
	go m.notifier.NotifyConnection(sessionID, state, detail)
}
