package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	otpdomain "whatsapp-otp-gateway/internal/otp/domain"
	otpservice "whatsapp-otp-gateway/internal/otp/service"
	"whatsapp-otp-gateway/internal/pairing"
	sessdomain "whatsapp-otp-gateway/internal/session/domain"
	"whatsapp-otp-gateway/internal/session/manager"
	"whatsapp-otp-gateway/internal/session/registry"
	sessionrepo "whatsapp-otp-gateway/internal/session/repository"
	"whatsapp-otp-gateway/internal/transport"
)

type stubClient struct {
	events chan transport.Event
}

func (c *stubClient) Events() <-chan transport.Event { return c.events }
func (c *stubClient) Send(ctx context.Context, jid, text string) (string, error) {
	return "MSG-1", nil
}
func (c *stubClient) Close() error { return nil }

// stubCodeRepo returns empty results for everything; enough to drive the
// error-path status codes.
type stubCodeRepo struct{}

func (stubCodeRepo) Create(context.Context, *otpdomain.Code) error { return nil }
func (stubCodeRepo) FindValid(context.Context, string, string) (*otpdomain.Code, error) {
	return nil, nil
}
func (stubCodeRepo) RecentFor(context.Context, string, string, time.Time) (*otpdomain.Code, error) {
	return nil, nil
}
func (stubCodeRepo) AttemptVerify(context.Context, string, string) (*otpdomain.Code, error) {
	return nil, nil
}
func (stubCodeRepo) ExpireOverdue(context.Context) (int64, error) { return 0, nil }
func (stubCodeRepo) ExpireByPhone(context.Context, string, string) (int64, error) {
	return 0, nil
}
func (stubCodeRepo) StatsFor(context.Context, string, time.Time) (map[otpdomain.Status]int, error) {
	return map[otpdomain.Status]int{}, nil
}
func (stubCodeRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

// stubSummaryRepo is a fixed set of durable session rows.
type stubSummaryRepo struct {
	rows map[string]*sessdomain.Session
}

func (s *stubSummaryRepo) Upsert(context.Context, *sessdomain.Session) error { return nil }
func (s *stubSummaryRepo) FindByID(_ context.Context, sessionID string) (*sessdomain.Session, error) {
	return s.rows[sessionID], nil
}
func (s *stubSummaryRepo) List(context.Context) ([]*sessdomain.Session, error) {
	out := make([]*sessdomain.Session, 0, len(s.rows))
	for _, sess := range s.rows {
		out = append(out, sess)
	}
	return out, nil
}
func (s *stubSummaryRepo) Delete(context.Context, string) error { return nil }

func newTestApp(t *testing.T) *fiber.App {
	return newTestAppWith(t, nil)
}

func newTestAppWith(t *testing.T, summaries sessionrepo.Repository) *fiber.App {
	t.Helper()
	creds, err := transport.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	dialer := transport.DialerFunc(func(ctx context.Context, _ *transport.Credentials) (transport.Client, error) {
		return &stubClient{events: make(chan transport.Event)}, nil
	})
	mgr := manager.New(manager.Deps{
		Registry:    registry.New(),
		Dialer:      dialer,
		Credentials: creds,
		Pairing:     pairing.NewCache(0),
	}, manager.Config{})
	svc := otpservice.New(stubCodeRepo{}, mgr, nil, nil, otpservice.Config{})
	return NewRouter(mgr, svc, nil, summaries).App()
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCreateSession_Statuses(t *testing.T) {
	app := newTestApp(t)

	if got := postJSON(t, app, "/api/sessions", map[string]string{}); got != 400 {
		t.Errorf("missing sessionId: status = %d, want 400", got)
	}
	if got := postJSON(t, app, "/api/sessions", map[string]string{"sessionId": "s1"}); got != 201 {
		t.Errorf("create: status = %d, want 201", got)
	}
	if got := postJSON(t, app, "/api/sessions", map[string]string{"sessionId": "s1"}); got != 409 {
		t.Errorf("duplicate create: status = %d, want 409", got)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	app := newTestApp(t)
	resp, err := app.Test(httptest.NewRequest("GET", "/api/sessions/ghost", nil))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetSession_FallsBackToSummaryRow(t *testing.T) {
	summaries := &stubSummaryRepo{rows: map[string]*sessdomain.Session{
		"old": {SessionID: "old", State: sessdomain.StateTerminated, LastError: "logged out"},
	}}
	app := newTestAppWith(t, summaries)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/sessions/old", nil))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200 from the durable row", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"state":"terminated"`) {
		t.Errorf("body = %s, want terminated summary", body)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/sessions/ghost", nil))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("unknown session status = %d, want 404", resp.StatusCode)
	}
}

func TestSessionHistory(t *testing.T) {
	summaries := &stubSummaryRepo{rows: map[string]*sessdomain.Session{
		"old": {SessionID: "old", State: sessdomain.StateTerminated},
	}}
	app := newTestAppWith(t, summaries)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/sessions/history", nil))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"sessionId":"old"`) {
		t.Errorf("body = %s, want the durable row listed", body)
	}
}

func TestPairingQR_NotAvailable(t *testing.T) {
	app := newTestApp(t)
	postJSON(t, app, "/api/sessions", map[string]string{"sessionId": "s1"})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/sessions/s1/qr", nil))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404 before pairing event", resp.StatusCode)
	}
}

func TestSendText_NotConnected(t *testing.T) {
	app := newTestApp(t)
	postJSON(t, app, "/api/sessions", map[string]string{"sessionId": "s1"})

	got := postJSON(t, app, "/api/messages/s1/text", map[string]string{"to": "0812345", "text": "hi"})
	if got != 409 {
		t.Errorf("send while connecting: status = %d, want 409", got)
	}
}

func TestVerifyOTP_Invalid(t *testing.T) {
	app := newTestApp(t)
	got := postJSON(t, app, "/api/otp/verify", map[string]string{"phoneNumber": "0812345", "code": "123456"})
	if got != 400 {
		t.Errorf("verify with no record: status = %d, want 400", got)
	}
}

func TestOTPStatus_NotFound(t *testing.T) {
	app := newTestApp(t)
	resp, err := app.Test(httptest.NewRequest("GET", "/api/otp/status?phoneNumber=0812345", nil))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
