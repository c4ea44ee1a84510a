package broadcast

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) deliver(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func allowAll(Event) bool { return true }
func denyAll(Event) bool  { return false }

// waitFor polls until cond holds; delivery runs on per-subscription goroutines.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPublish_FilteredDelivery(t *testing.T) {
	h := New(slog.Default())

	var allowed, denied recorder
	h.Subscribe(allowAll, allowed.deliver)
	h.Subscribe(denyAll, denied.deliver)

	h.Publish(Event{"method": "status_of", "cc_agent": "1000-Jane_Doe"})

	waitFor(t, func() bool { return allowed.count() == 1 }, "allowed subscriber never got the event")
	if denied.count() != 0 {
		t.Errorf("denied subscriber got %d events, want 0", denied.count())
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	h := New(slog.Default())

	var r recorder
	handle := h.Subscribe(allowAll, r.deliver)
	h.Publish(Event{"method": "a"})
	waitFor(t, func() bool { return r.count() == 1 }, "first event never delivered")

	h.Unsubscribe(handle)
	h.Publish(Event{"method": "b"})

	if r.count() != 1 {
		t.Errorf("got %d events after unsubscribe, want 1", r.count())
	}
	if h.Len() != 0 {
		t.Errorf("hub still holds %d subscriptions", h.Len())
	}

	// Unknown handles are a no-op.
	h.Unsubscribe(handle)
	h.Unsubscribe("never-existed")
}

func TestPublish_IsolatesFailingSubscribers(t *testing.T) {
	h := New(slog.Default())

	var healthy recorder
	h.Subscribe(allowAll, func(Event) error { return errors.New("conn gone") })
	h.Subscribe(allowAll, func(Event) error { panic("boom") })
	h.Subscribe(allowAll, healthy.deliver)

	h.Publish(Event{"method": "status_of"})

	waitFor(t, func() bool { return healthy.count() == 1 }, "healthy subscriber starved by failing peers")
}

func TestPublish_NotBlockedByStalledSubscriber(t *testing.T) {
	h := New(slog.Default())

	stall := make(chan struct{})
	defer close(stall)
	h.Subscribe(allowAll, func(Event) error { <-stall; return nil })

	var healthy recorder
	h.Subscribe(allowAll, healthy.deliver)

	// Overfill the stalled subscription's queue; every publish must still
	// return promptly and reach the healthy subscriber.
	published := make(chan struct{})
	go func() {
		for i := 0; i < subscriberQueueLen+8; i++ {
			h.Publish(Event{"method": "status_of"})
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("publish blocked behind a stalled subscriber")
	}

	waitFor(t, func() bool { return healthy.count() >= 1 }, "healthy subscriber starved by a stalled peer")
}

func TestPublish_ConcurrentWithSubscribe(t *testing.T) {
	h := New(slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			var r recorder
			handle := h.Subscribe(allowAll, r.deliver)
			h.Unsubscribe(handle)
		}()
		go func() {
			defer wg.Done()
			h.Publish(Event{"method": "state_of"})
		}()
	}
	wg.Wait()
}

func TestEventAccessors(t *testing.T) {
	e := Event{"method": "status_of", "cc_agent": "1000-Jane_Doe"}
	if e.Method() != "status_of" {
		t.Errorf("Method() = %q", e.Method())
	}
	if e.Agent() != "1000-Jane_Doe" {
		t.Errorf("Agent() = %q", e.Agent())
	}

	empty := Event{"cc_agent": 7}
	if empty.Method() != "" || empty.Agent() != "" {
		t.Error("non-string fields should read as empty")
	}
}
