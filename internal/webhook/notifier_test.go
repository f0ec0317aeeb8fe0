package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"whatsapp-otp-gateway/internal/session/domain"
	"whatsapp-otp-gateway/internal/transport"
)

func TestNew_EmptyURL(t *testing.T) {
	if n := New(""); n != nil {
		t.Error("New with empty URL should return nil")
	}
}

func TestNotifyConnection(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		received <- payload
	}))
	defer srv.Close()

	n := New(srv.URL)
	n.NotifyConnection("s1", domain.StateConnected, "")

	payload := <-received
	if payload["event"] != "connection.update" {
		t.Errorf("event = %v, want connection.update", payload["event"])
	}
	if payload["sessionId"] != "s1" || payload["state"] != "connected" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestNotifyInbound(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		received <- payload
	}))
	defer srv.Close()

	n := New(srv.URL)
	n.NotifyInbound("s1", transport.InboundMessage{
		From:      "628123@s.whatsapp.net",
		MessageID: "M1",
		Text:      "hello",
	})

	payload := <-received
	if payload["event"] != "message.received" {
		t.Errorf("event = %v, want message.received", payload["event"])
	}
	if payload["messageId"] != "M1" || payload["text"] != "hello" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestDeliver_EndpointDown(t *testing.T) {
	// Must not panic or block; failures are logged only.
	n := New("http://127.0.0.1:1/unreachable")
	n.NotifyConnection("s1", domain.StateDisconnected, "boom")
}
