// Package domain holds the activity record written for every session
// transition and message operation.
package domain

import "time"

// Actions recorded by the gateway.
const (
	ActionSessionCreate   = "session_create"
	ActionSessionDelete   = "session_delete"
	ActionSessionRestart  = "session_restart"
	ActionQRGenerate      = "qr_generate"
	ActionConnectionOpen  = "connection_open"
	ActionConnectionClose = "connection_close"
	ActionReconnect       = "reconnect"
	ActionMessageSend     = "message_send"
	ActionMessageReceive  = "message_receive"
	ActionOTPSend         = "otp_send"
	ActionOTPVerify       = "otp_verify"
)

// Outcome status of a recorded action.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Record is one activity log entry.
type Record struct {
	ID           string
	SessionID    string
	Action       string
	Status       string
	PhoneNumber  string
	MessageID    string
	Detail       string
	ErrorMessage string
	CreatedAt    time.Time
}
