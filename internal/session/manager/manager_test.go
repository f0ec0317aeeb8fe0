package manager

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"whatsapp-otp-gateway/internal/pairing"
	"whatsapp-otp-gateway/internal/session/domain"
	"whatsapp-otp-gateway/internal/session/registry"
	"whatsapp-otp-gateway/internal/transport"
)

// fakeClient is a scripted transport client. Events are pushed by the test
// and consumed by the manager's event loop.
type fakeClient struct {
	events chan transport.Event

	mu     sync.Mutex
	sent   []string // jid|text pairs
	closed bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan transport.Event)}
}

func (c *fakeClient) Events() <-chan transport.Event { return c.events }

func (c *fakeClient) Send(ctx context.Context, jid, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", errors.New("client closed")
	}
	c.sent = append(c.sent, jid+"|"+text)
	return "MSG-1", nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) emitPairing(payload string) {
	c.events <- transport.Event{Type: transport.EventPairing, PairingPayload: payload}
}

func (c *fakeClient) emitOpened(user transport.RemoteUser) {
	c.events <- transport.Event{Type: transport.EventOpened, RemoteUser: &user}
}

func (c *fakeClient) emitCredentials(data []byte) {
	c.events <- transport.Event{
		Type:        transport.EventCredentials,
		Credentials: &transport.Credentials{Data: data},
	}
}

// emitClosed delivers the terminal close event and closes the stream.
func (c *fakeClient) emitClosed(code int, message string) {
	c.events <- transport.Event{Type: transport.EventClosed, Code: code, Message: message}
	close(c.events)
}

// fakeDialer hands out a fresh fakeClient per dial and records the credentials
// each dial was given.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	creds   []*transport.Credentials
	err     error
}

func (d *fakeDialer) Dial(ctx context.Context, creds *transport.Credentials) (transport.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = append(d.creds, creds)
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeClient()
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *fakeDialer) dialCreds(i int) *transport.Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creds[i]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *fakeDialer) client(i int) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[i]
}

// fakeTimer records the requested delay and fires only when the test says so.
type fakeTimer struct {
	delay   time.Duration
	fire    func()
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type timerRecorder struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (r *timerRecorder) factory(d time.Duration, fire func()) timer {
	t := &fakeTimer{delay: d, fire: fire}
	r.mu.Lock()
	r.timers = append(r.timers, t)
	r.mu.Unlock()
	return t
}

func (r *timerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *timerRecorder) timer(i int) *fakeTimer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timers[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeDialer, *timerRecorder) {
	t.Helper()
	dialer := &fakeDialer{}
	timers := &timerRecorder{}
	creds, err := transport.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	m := New(Deps{
		Registry:    registry.New(),
		Dialer:      dialer,
		Credentials: creds,
		Pairing:     pairing.NewCache(0),
		NewTimer:    timers.factory,
	}, cfg)
	return m, dialer, timers
}

func TestCreateSession_PairsThenConnects(t *testing.T) {
	m, dialer, _ := newTestManager(t, Config{})
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.State != domain.StateConnecting {
		t.Errorf("state after create = %s, want %s", sess.State, domain.StateConnecting)
	}

	waitFor(t, "dial", func() bool { return dialer.dials() == 1 })
	client := dialer.client(0)

	client.emitPairing("pair-me")
	waitFor(t, "awaiting pairing", func() bool {
		got, _ := m.GetSession("s1")
		return got.State == domain.StateAwaitingPairing
	})
	artifact, ok := m.PairingArtifact("s1")
	if !ok {
		t.Fatal("pairing artifact should be cached")
	}
	if artifact.Data == "" {
		t.Error("pairing artifact data should be rendered")
	}

	client.emitOpened(transport.RemoteUser{ID: "628111@s.whatsapp.net", Name: "Gateway"})
	waitFor(t, "connected", func() bool {
		got, _ := m.GetSession("s1")
		return got.State == domain.StateConnected
	})
	got, _ := m.GetSession("s1")
	if got.RemoteUserID != "628111@s.whatsapp.net" || got.RemoteUserName != "Gateway" {
		t.Errorf("remote user not recorded: %+v", got)
	}
	if got.ConnectedAt == nil {
		t.Error("ConnectedAt should be set")
	}
	if _, ok := m.PairingArtifact("s1"); ok {
		t.Error("pairing artifact should be cleared on connect")
	}
}

func TestCreateSession_AlreadyExists(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()

	if _, err := m.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("first CreateSession: %v", err)
	}
	if _, err := m.CreateSession(ctx, "s1"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second CreateSession err = %v, want ErrAlreadyExists", err)
	}
}

func connectSession(t *testing.T, m *Manager, dialer *fakeDialer, sessionID string) *fakeClient {
	t.Helper()
	if _, err := m.CreateSession(context.Background(), sessionID); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	waitFor(t, "dial", func() bool { return dialer.dials() >= 1 })
	client := dialer.client(dialer.dials() - 1)
	client.emitOpened(transport.RemoteUser{ID: "628111@s.whatsapp.net"})
	waitFor(t, "connected", func() bool {
		got, _ := m.GetSession(sessionID)
		return got.State == domain.StateConnected
	})
	return client
}

func TestSendText(t *testing.T) {
	m, dialer, _ := newTestManager(t, Config{})
	client := connectSession(t, m, dialer, "s1")

	messageID, err := m.SendText(context.Background(), "s1", "0812-3456", "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if messageID != "MSG-1" {
		t.Errorf("messageID = %q, want MSG-1", messageID)
	}
	client.mu.Lock()
	sent := append([]string(nil), client.sent...)
	client.mu.Unlock()
	if len(sent) != 1 || sent[0] != "628123456@s.whatsapp.net|hello" {
		t.Errorf("sent = %v, want normalized JID target", sent)
	}
}

func TestSendText_NotConnected(t *testing.T) {
	m, dialer, _ := newTestManager(t, Config{})
	if _, err := m.CreateSession(context.Background(), "s1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	waitFor(t, "dial", func() bool { return dialer.dials() == 1 })

	if _, err := m.SendText(context.Background(), "s1", "0812", "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendText err = %v, want ErrNotConnected", err)
	}
	if _, err := m.SendText(context.Background(), "ghost", "0812", "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SendText unknown session err = %v, want ErrNotFound", err)
	}
}

func TestTransientClose_BackoffSequenceThenTerminated(t *testing.T) {
	m, dialer, timers := newTestManager(t, Config{})
	connectSession(t, m, dialer, "s1")

	wantDelays := []time.Duration{
		3000 * time.Millisecond,
		6000 * time.Millisecond,
		12000 * time.Millisecond,
		24000 * time.Millisecond,
		48000 * time.Millisecond,
	}

	for i, want := range wantDelays {
		client := dialer.client(dialer.dials() - 1)
		client.emitClosed(428, "connection lost")
		waitFor(t, "retry scheduled", func() bool { return timers.count() == i+1 })

		ft := timers.timer(i)
		if ft.delay != want {
			t.Fatalf("retry %d delay = %s, want %s", i+1, ft.delay, want)
		}
		got, _ := m.GetSession("s1")
		if got.State != domain.StateDisconnected {
			t.Fatalf("state before retry %d = %s, want %s", i+1, got.State, domain.StateDisconnected)
		}

		dialsBefore := dialer.dials()
		ft.fire()
		waitFor(t, "re-dial", func() bool { return dialer.dials() == dialsBefore+1 })
	}

	// Sixth transient close exhausts the budget: terminated and removed.
	client := dialer.client(dialer.dials() - 1)
	client.emitClosed(428, "connection lost")
	waitFor(t, "terminated", func() bool {
		_, ok := m.GetSession("s1")
		return !ok
	})
	if timers.count() != len(wantDelays) {
		t.Errorf("no retry may be scheduled after exhaustion: got %d timers", timers.count())
	}
}

func TestSuccessfulConnectResetsAttempts(t *testing.T) {
	m, dialer, timers := newTestManager(t, Config{})
	connectSession(t, m, dialer, "s1")

	// Two transient closes, then a successful reconnect.
	for i := 0; i < 2; i++ {
		dialer.client(dialer.dials() - 1).emitClosed(428, "blip")
		waitFor(t, "retry scheduled", func() bool { return timers.count() == i+1 })
		dialsBefore := dialer.dials()
		timers.timer(i).fire()
		waitFor(t, "re-dial", func() bool { return dialer.dials() == dialsBefore+1 })
	}
	client := dialer.client(dialer.dials() - 1)
	client.emitOpened(transport.RemoteUser{ID: "u"})
	waitFor(t, "reconnected", func() bool {
		got, _ := m.GetSession("s1")
		return got.State == domain.StateConnected
	})

	// The next transient close starts the backoff over at the base delay.
	client.emitClosed(428, "blip")
	waitFor(t, "retry scheduled", func() bool { return timers.count() == 3 })
	if got := timers.timer(2).delay; got != 3000*time.Millisecond {
		t.Errorf("delay after reset = %s, want 3s", got)
	}
}

func TestTerminalClose_LoggedOut(t *testing.T) {
	m, dialer, timers := newTestManager(t, Config{})
	client := connectSession(t, m, dialer, "s1")

	client.emitClosed(401, "logged out")
	waitFor(t, "terminated", func() bool {
		_, ok := m.GetSession("s1")
		return !ok
	})
	if timers.count() != 0 {
		t.Error("terminal close must not schedule a retry")
	}
	if _, ok := m.PairingArtifact("s1"); ok {
		t.Error("pairing artifact must be cleared on terminal close")
	}
}

func TestRestartClose_FixedDelayNoAttemptIncrement(t *testing.T) {
	m, dialer, timers := newTestManager(t, Config{RestartDelay: 1500 * time.Millisecond})
	client := connectSession(t, m, dialer, "s1")

	client.emitClosed(515, "restart required")
	waitFor(t, "restart scheduled", func() bool { return timers.count() == 1 })
	if got := timers.timer(0).delay; got != 1500*time.Millisecond {
		t.Errorf("restart delay = %s, want 1.5s", got)
	}

	dialsBefore := dialer.dials()
	timers.timer(0).fire()
	waitFor(t, "re-dial", func() bool { return dialer.dials() == dialsBefore+1 })

	// A restart-class close does not consume an attempt: the next transient
	// close still gets the base delay.
	dialer.client(dialer.dials() - 1).emitClosed(428, "blip")
	waitFor(t, "retry scheduled", func() bool { return timers.count() == 2 })
	if got := timers.timer(1).delay; got != 3000*time.Millisecond {
		t.Errorf("delay after restart = %s, want 3s", got)
	}
}

func TestRemoveSession_CancelsPendingRetry(t *testing.T) {
	m, dialer, timers := newTestManager(t, Config{})
	client := connectSession(t, m, dialer, "s1")

	client.emitClosed(428, "blip")
	waitFor(t, "retry scheduled", func() bool { return timers.count() == 1 })

	if err := m.RemoveSession(context.Background(), "s1"); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if !timers.timer(0).isStopped() {
		t.Error("pending retry timer must be stopped synchronously by RemoveSession")
	}
	if m.sched.hasPending("s1") {
		t.Error("no retry task may remain after RemoveSession")
	}

	// A stale timer firing anyway must not resurrect the session.
	dialsBefore := dialer.dials()
	timers.timer(0).fire()
	time.Sleep(20 * time.Millisecond)
	if dialer.dials() != dialsBefore {
		t.Error("stale retry must be a no-op after removal")
	}
	if _, ok := m.GetSession("s1"); ok {
		t.Error("session must stay removed")
	}
}

func TestRemoveSession_NotFound(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	if err := m.RemoveSession(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveSession err = %v, want ErrNotFound", err)
	}
}

func TestRestartSession(t *testing.T) {
	m, dialer, _ := newTestManager(t, Config{})
	client := connectSession(t, m, dialer, "s1")

	dialsBefore := dialer.dials()
	if err := m.RestartSession(context.Background(), "s1"); err != nil {
		t.Fatalf("RestartSession: %v", err)
	}
	waitFor(t, "client closed", client.isClosed)
	waitFor(t, "re-dial", func() bool { return dialer.dials() == dialsBefore+1 })

	got, _ := m.GetSession("s1")
	if got.State != domain.StateConnecting {
		t.Errorf("state after restart = %s, want %s", got.State, domain.StateConnecting)
	}
}

func TestDialFailure_SchedulesRetry(t *testing.T) {
	m, dialer, timers := newTestManager(t, Config{})
	dialer.mu.Lock()
	dialer.err = errors.New("network unreachable")
	dialer.mu.Unlock()

	if _, err := m.CreateSession(context.Background(), "s1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	waitFor(t, "retry scheduled", func() bool { return timers.count() == 1 })

	got, _ := m.GetSession("s1")
	if got.State != domain.StateDisconnected {
		t.Errorf("state after dial failure = %s, want %s", got.State, domain.StateDisconnected)
	}
	if got.LastError == "" {
		t.Error("LastError should record the dial failure")
	}
}

func TestPairingArtifact_UnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	if _, ok := m.PairingArtifact("ghost"); ok {
		t.Error("unknown session must have no pairing artifact")
	}
}

func TestCredentialsPersistedAcrossReconnect(t *testing.T) {
	m, dialer, timers := newTestManager(t, Config{})
	client := connectSession(t, m, dialer, "s1")

	if dialer.dialCreds(0) != nil {
		t.Error("first dial must start without stored credentials")
	}

	client.emitCredentials([]byte(`{"noise":"key-material"}`))
	waitFor(t, "credentials saved", func() bool {
		stored, err := m.creds.Load("s1")
		return err == nil && stored != nil
	})

	client.emitClosed(428, "connection lost")
	waitFor(t, "retry scheduled", func() bool { return timers.count() == 1 })
	timers.timer(0).fire()
	waitFor(t, "re-dial", func() bool { return dialer.dials() == 2 })

	got := dialer.dialCreds(1)
	if got == nil || string(got.Data) != `{"noise":"key-material"}` {
		t.Fatalf("retry dialed with %v, want the saved credential blob", got)
	}
}

func TestCredentialsSurviveRestartClose(t *testing.T) {
	m, dialer, timers := newTestManager(t, Config{})
	client := connectSession(t, m, dialer, "s1")

	client.emitCredentials([]byte("blob"))
	waitFor(t, "credentials saved", func() bool {
		stored, _ := m.creds.Load("s1")
		return stored != nil
	})

	// 515-class close: the fixed-delay re-dial must also resume with the
	// stored credentials.
	client.emitClosed(515, "restart required")
	waitFor(t, "restart scheduled", func() bool { return timers.count() == 1 })
	timers.timer(0).fire()
	waitFor(t, "re-dial", func() bool { return dialer.dials() == 2 })

	if got := dialer.dialCreds(1); got == nil || string(got.Data) != "blob" {
		t.Fatalf("restart re-dial credentials = %v, want stored blob", got)
	}
}

func TestPairingRenderFailure_KeepsConnecting(t *testing.T) {
	m, dialer, _ := newTestManager(t, Config{})
	if _, err := m.CreateSession(context.Background(), "s1"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	waitFor(t, "dial", func() bool { return dialer.dials() == 1 })
	client := dialer.client(0)

	// An unrenderable payload is dropped; the next good payload still pairs.
	client.emitPairing("")
	client.emitPairing("pair-me")
	waitFor(t, "awaiting pairing", func() bool {
		got, _ := m.GetSession("s1")
		return got.State == domain.StateAwaitingPairing
	})
	if artifact, ok := m.PairingArtifact("s1"); !ok || artifact.Data == "" {
		t.Error("good payload after a failed render must still produce an artifact")
	}
}

// currentGen reads the live generation counter for the session, if any.
func currentGen(m *Manager, sessionID string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return 0, false
	}
	return e.gen, true
}

func checkSessionInvariants(t *testing.T, m *Manager, sessionID string, step int) {
	t.Helper()
	sess, ok := m.GetSession(sessionID)
	if !ok {
		if m.sched.hasPending(sessionID) {
			t.Fatalf("step %d: removed session still has a pending retry", step)
		}
		return
	}
	switch sess.State {
	case domain.StateIdle, domain.StateConnecting, domain.StateAwaitingPairing,
		domain.StateConnected, domain.StateDisconnected:
	default:
		t.Fatalf("step %d: live session in state %s", step, sess.State)
	}
	if (sess.RemoteUserID != "") != (sess.State == domain.StateConnected) {
		t.Fatalf("step %d: remote user %q while %s", step, sess.RemoteUserID, sess.State)
	}
	if sess.State == domain.StateConnected {
		if _, ok := m.PairingArtifact(sessionID); ok {
			t.Fatalf("step %d: pairing artifact survived a connect", step)
		}
		if m.sched.hasPending(sessionID) {
			t.Fatalf("step %d: retry pending while connected", step)
		}
	}
}

// TestRandomEventSequences drives arbitrary event interleavings, including
// stale timer firings and terminal closes followed by re-creation, and checks
// the externally visible invariants after every step.
func TestRandomEventSequences(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			m, dialer, timers := newTestManager(t, Config{})
			const id = "fuzz"
			if _, err := m.CreateSession(context.Background(), id); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			waitFor(t, "dial", func() bool { return dialer.dials() >= 1 })

			fired := 0
			closeCodes := []int{401, 515, 428}
			for step := 0; step < 300; step++ {
				gen, alive := currentGen(m, id)
				if !alive {
					if _, err := m.CreateSession(context.Background(), id); err != nil {
						t.Fatalf("step %d: recreate: %v", step, err)
					}
					checkSessionInvariants(t, m, id, step)
					continue
				}
				switch rng.Intn(7) {
				case 0:
					m.handleEvent(id, gen, transport.Event{
						Type: transport.EventPairing, PairingPayload: "payload",
					})
				case 1:
					m.handleEvent(id, gen, transport.Event{
						Type:       transport.EventOpened,
						RemoteUser: &transport.RemoteUser{ID: "628111@s.whatsapp.net"},
					})
				case 2:
					m.handleEvent(id, gen, transport.Event{
						Type: transport.EventClosed,
						Code: closeCodes[rng.Intn(len(closeCodes))], Message: "fuzzed close",
					})
				case 3:
					m.handleEvent(id, gen, transport.Event{
						Type:    transport.EventMessage,
						Inbound: &transport.InboundMessage{From: "628111@s.whatsapp.net", MessageID: "m", Text: "hi"},
					})
				case 4:
					m.handleEvent(id, gen, transport.Event{
						Type:        transport.EventCredentials,
						Credentials: &transport.Credentials{Data: []byte("blob")},
					})
				case 5:
					// Stale event from a long-replaced client: always a no-op.
					m.handleEvent(id, gen+100, transport.Event{
						Type: transport.EventClosed, Code: 428, Message: "stale",
					})
				case 6:
					if fired < timers.count() {
						timers.timer(fired).fire()
						fired++
					}
				}
				checkSessionInvariants(t, m, id, step)
			}
		})
	}
}
