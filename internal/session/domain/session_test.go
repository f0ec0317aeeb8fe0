package domain

import "testing"

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to State }{
		{StateIdle, StateConnecting},
		{StateConnecting, StateAwaitingPairing},
		{StateConnecting, StateConnected},
		{StateConnecting, StateDisconnected},
		{StateAwaitingPairing, StateConnected},
		{StateAwaitingPairing, StateDisconnected},
		{StateConnected, StateDisconnected},
		{StateDisconnected, StateConnecting},
		{StateDisconnected, StateTerminated},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to State }{
		{StateIdle, StateConnected},
		{StateAwaitingPairing, StateTerminated},
		{StateConnected, StateTerminated},
		{StateConnected, StateConnecting},
		{StateTerminated, StateConnecting},
		{StateTerminated, StateIdle},
		{StateConnecting, StateIdle},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tc.from, tc.to)
		}
	}
}

func TestTerminatedHasNoOutgoing(t *testing.T) {
	for _, to := range []State{StateIdle, StateConnecting, StateAwaitingPairing, StateConnected, StateDisconnected, StateTerminated} {
		if CanTransition(StateTerminated, to) {
			t.Errorf("Terminated must be terminal, but allows transition to %s", to)
		}
	}
}
