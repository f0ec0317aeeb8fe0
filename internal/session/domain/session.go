// Package domain holds the session record and its connection state machine.
package domain

import "time"

// State is the connection state of a session.
type State string

const (
	StateIdle            State = "idle"
	StateConnecting      State = "connecting"
	StateAwaitingPairing State = "awaiting_pairing"
	StateConnected       State = "connected"
	StateDisconnected    State = "disconnected"
	StateTerminated      State = "terminated"
)

// transitions is the legal transition table. Terminated has no outgoing edges.
var transitions = map[State][]State{
	StateIdle:            {StateConnecting},
	StateConnecting:      {StateAwaitingPairing, StateConnected, StateDisconnected},
	StateAwaitingPairing: {StateConnected, StateDisconnected},
	StateConnected:       {StateDisconnected},
	StateDisconnected:    {StateConnecting, StateTerminated},
	StateTerminated:      {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is the in-memory record for one managed connection. RemoteUserID and
// RemoteUserName are set only while State is Connected.
type Session struct {
	SessionID      string
	State          State
	RemoteUserID   string
	RemoteUserName string
	LastError      string
	ConnectedAt    *time.Time
	DisconnectedAt *time.Time
	LastSeenAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
