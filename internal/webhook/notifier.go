// Package webhook delivers gateway events to a configured HTTP endpoint.
// Delivery is fire-and-forget with a short timeout; failures are logged and
// never affect the session that produced the event.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"whatsapp-otp-gateway/internal/session/domain"
	"whatsapp-otp-gateway/internal/transport"
)

const deliverTimeout = 10 * time.Second

// Notifier posts events as JSON to a single webhook URL.
type Notifier struct {
	url    string
	client *http.Client
	nowF   func() time.Time
}

// New returns a Notifier for the given URL, or nil when url is empty so the
// caller can wire it straight into an optional dependency.
func New(url string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: deliverTimeout},
		nowF:   time.Now,
	}
}

type event struct {
	Event     string    `json:"event"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`

	State  string `json:"state,omitempty"`
	Detail string `json:"detail,omitempty"`

	From      string `json:"from,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Text      string `json:"text,omitempty"`
}

// NotifyConnection posts a connection-status event.
func (n *Notifier) NotifyConnection(sessionID string, state domain.State, detail string) {
	n.deliver(event{
		Event:     "connection.update",
		SessionID: sessionID,
		Timestamp: n.nowF().UTC(),
		State:     string(state),
		Detail:    detail,
	})
}

// NotifyInbound posts an inbound-message event.
func (n *Notifier) NotifyInbound(sessionID string, msg transport.InboundMessage) {
	n.deliver(event{
		Event:     "message.received",
		SessionID: sessionID,
		Timestamp: n.nowF().UTC(),
		From:      msg.From,
		MessageID: msg.MessageID,
		Text:      msg.Text,
	})
}

func (n *Notifier) deliver(ev event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("webhook: marshal %s: %v", ev.Event, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		log.Printf("webhook: build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("webhook: deliver %s: %v", ev.Event, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("webhook: deliver %s: endpoint returned %s", ev.Event, resp.Status)
	}
}
