// Package transport defines the collaborator interfaces the gateway uses to reach
// the messaging network: a credential store, a dialer, and the per-connection
// client with its event stream. The wire protocol itself lives behind these
// interfaces and is provided by the hosting binary.
package transport

import "context"

// EventType identifies a connection-state event delivered by a Client.
type EventType int

const (
	// EventPairing carries a fresh pairing payload that must be presented
	// out-of-band (rendered as a QR) to complete authentication.
	EventPairing EventType = iota
	// EventOpened signals the connection is established and authenticated.
	EventOpened
	// EventClosed signals the connection ended, with a reason code and message.
	// It is terminal for the client; the events channel is closed after delivery.
	EventClosed
	// EventMessage carries an inbound message from a remote party.
	EventMessage
	// EventCredentials carries updated pairing credentials. Clients emit it
	// whenever the credential material changes (first pairing, key rotation)
	// so the session can be resumed across dials without re-pairing.
	EventCredentials
)

// RemoteUser identifies the account a connected session is paired with.
type RemoteUser struct {
	ID   string
	Name string
}

// InboundMessage is a message received over an open connection.
type InboundMessage struct {
	From      string // sender JID
	MessageID string
	Text      string
}

// Event is a single connection-state or message event. Exactly the fields
// relevant to Type are set.
type Event struct {
	Type           EventType
	PairingPayload string          // EventPairing
	RemoteUser     *RemoteUser     // EventOpened
	Code           int             // EventClosed reason code
	Message        string          // EventClosed reason message
	Inbound        *InboundMessage // EventMessage
	Credentials    *Credentials    // EventCredentials
}

// Credentials is the opaque pairing credential blob for one session.
type Credentials struct {
	Data []byte
}

// CredentialStore persists per-session credentials.
type CredentialStore interface {
	// Load returns the credentials for sessionID, or nil when none are stored.
	// It returns an error only for storage failures, not for absence.
	Load(sessionID string) (*Credentials, error)
	Save(sessionID string, creds *Credentials) error
	// Delete removes stored credentials. Deleting absent credentials is not an error.
	Delete(sessionID string) error
}

// Client is one live connection to the messaging network.
//
// Events are delivered in order for this client; the channel is closed after
// the terminal EventClosed. Send is only valid while the connection is open.
type Client interface {
	Events() <-chan Event
	Send(ctx context.Context, jid, text string) (messageID string, err error)
	Close() error
}

// Dialer opens a new connection with the given credentials. creds may be nil
// for a first-time pairing; the client then emits EventPairing before
// EventOpened. Implementations respect ctx's deadline for the handshake.
type Dialer interface {
	Dial(ctx context.Context, creds *Credentials) (Client, error)
}
