package transport

import (
	"context"
	"errors"
	"sync"
)

// DialerFunc adapts a plain function to the Dialer interface.
type DialerFunc func(ctx context.Context, creds *Credentials) (Client, error)

func (f DialerFunc) Dial(ctx context.Context, creds *Credentials) (Client, error) {
	return f(ctx, creds)
}

// ErrNoDialer means no protocol adapter registered itself before the server
// asked for one.
var ErrNoDialer = errors.New("transport: no dialer registered")

var (
	dialerMu   sync.RWMutex
	registered Dialer
)

// RegisterDialer installs the protocol adapter the server binary dials with.
// Adapters call this from an init function, the same way database/sql drivers
// register themselves. The last registration wins.
func RegisterDialer(d Dialer) {
	dialerMu.Lock()
	defer dialerMu.Unlock()
	registered = d
}

// DefaultDialer returns the registered protocol adapter.
func DefaultDialer() (Dialer, error) {
	dialerMu.RLock()
	defer dialerMu.RUnlock()
	if registered == nil {
		return nil, ErrNoDialer
	}
	return registered, nil
}
