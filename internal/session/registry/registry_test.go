package registry

import (
	"sync"
	"testing"

	"whatsapp-otp-gateway/internal/session/domain"
)

func TestPutGetRemove(t *testing.T) {
	r := New()

	if _, ok := r.Get("s1"); ok {
		t.Fatal("Get on empty registry should report absent")
	}

	r.Put(domain.Session{SessionID: "s1", State: domain.StateIdle})
	got, ok := r.Get("s1")
	if !ok {
		t.Fatal("Get after Put should find the session")
	}
	if got.State != domain.StateIdle {
		t.Errorf("state = %s, want %s", got.State, domain.StateIdle)
	}

	r.Put(domain.Session{SessionID: "s1", State: domain.StateConnected})
	got, _ = r.Get("s1")
	if got.State != domain.StateConnected {
		t.Errorf("Put should overwrite: state = %s, want %s", got.State, domain.StateConnected)
	}

	r.Remove("s1")
	if _, ok := r.Get("s1"); ok {
		t.Error("Get after Remove should report absent")
	}
}

func TestListSnapshot(t *testing.T) {
	r := New()
	r.Put(domain.Session{SessionID: "b"})
	r.Put(domain.Session{SessionID: "a"})

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(list))
	}
	if list[0].SessionID != "a" || list[1].SessionID != "b" {
		t.Errorf("List not sorted by session ID: %v", list)
	}

	// Mutating the snapshot must not affect the registry.
	list[0].State = domain.StateTerminated
	got, _ := r.Get("a")
	if got.State == domain.StateTerminated {
		t.Error("List must return copies, not live references")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Put(domain.Session{SessionID: "s1", State: domain.StateConnecting})
				r.Get("s1")
				r.List()
			}
		}()
	}
	wg.Wait()
}
