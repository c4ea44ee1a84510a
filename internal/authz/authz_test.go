package authz

import (
	"log/slog"
	"testing"

	"github.com/callwatch/callwatch/internal/broadcast"
	"github.com/callwatch/callwatch/internal/directory"
	"github.com/callwatch/callwatch/internal/store"
)

type fakeSubscriber struct {
	agent string
	user  *directory.Identity
}

func (f *fakeSubscriber) AgentID() string               { return f.agent }
func (f *fakeSubscriber) Identity() *directory.Identity { return f.user }

func manager(t *testing.T, agent, ext string, viewable ...string) *directory.Identity {
	t.Helper()
	return directory.NewIdentity(store.Account{
		Agent:     agent,
		Extension: ext,
		Manager:   true,
	}, viewable)
}

func TestCanView_DeniedWithoutBinding(t *testing.T) {
	e := NewEngine(slog.Default())

	sub := &fakeSubscriber{}
	if e.CanView(sub, broadcast.Event{"cc_agent": "1000-Jane_Doe"}) {
		t.Error("unbound subscriber should see nothing")
	}
}

func TestCanView_DeniedWithoutIdentity(t *testing.T) {
	e := NewEngine(slog.Default())

	sub := &fakeSubscriber{agent: "1000-Jane_Doe"}
	if e.CanView(sub, broadcast.Event{"cc_agent": "1000-Jane_Doe"}) {
		t.Error("subscriber without a resolvable identity should see nothing")
	}
}

func TestCanView_OwnEvents(t *testing.T) {
	e := NewEngine(slog.Default())

	sub := &fakeSubscriber{
		agent: "1000-Jane_Doe",
		user:  manager(t, "1000-Jane_Doe", "1000"),
	}
	if !e.CanView(sub, broadcast.Event{"cc_agent": "1000-Jane_Doe"}) {
		t.Error("subscriber should always see their own events")
	}
}

func TestCanView_ExtensionMatch(t *testing.T) {
	e := NewEngine(slog.Default())

	// Same extension, different display name.
	sub := &fakeSubscriber{
		agent: "1000-Jane_Doe",
		user:  manager(t, "1000-Jane_Doe", "1000"),
	}
	if !e.CanView(sub, broadcast.Event{"cc_agent": "1000-J_Doe"}) {
		t.Error("events for the subscriber's own extension should be visible")
	}
}

func TestCanView_GrantedExtension(t *testing.T) {
	e := NewEngine(slog.Default())

	sub := &fakeSubscriber{
		agent: "1000-Jane_Doe",
		user:  manager(t, "1000-Jane_Doe", "1000", "2000"),
	}

	if !e.CanView(sub, broadcast.Event{"cc_agent": "2000-Bob_Smith"}) {
		t.Error("granted extension should be visible")
	}
	if e.CanView(sub, broadcast.Event{"cc_agent": "3000-Eve_Jones"}) {
		t.Error("ungranted extension should not be visible")
	}
}

func TestCanView_LowSpecificityAllowed(t *testing.T) {
	e := NewEngine(slog.Default())

	sub := &fakeSubscriber{
		agent: "1000-Jane_Doe",
		user:  manager(t, "1000-Jane_Doe", "1000"),
	}

	// No target agent, at most one phone number mentioned.
	if !e.CanView(sub, broadcast.Event{"method": "channel_create"}) {
		t.Error("event with no numbers should pass")
	}
	if !e.CanView(sub, broadcast.Event{"method": "channel_create", "caller": "5551234"}) {
		t.Error("event with one number should pass")
	}
}

func TestCanView_MultiNumberNeedsViewableExtension(t *testing.T) {
	e := NewEngine(slog.Default())

	sub := &fakeSubscriber{
		agent: "1000-Jane_Doe",
		user:  manager(t, "1000-Jane_Doe", "1000", "2000"),
	}

	visible := broadcast.Event{"caller": "5551234", "callee": "2000"}
	if !e.CanView(sub, visible) {
		t.Error("event mentioning a viewable 4-digit number should pass")
	}

	hidden := broadcast.Event{"caller": "5551234", "callee": "3000"}
	if e.CanView(sub, hidden) {
		t.Error("event mentioning only unviewable numbers should be denied")
	}

	// A viewable number longer than an extension does not qualify.
	long := broadcast.Event{"caller": "5551234", "callee": "20001"}
	if e.CanView(sub, long) {
		t.Error("non-extension-length numbers should not grant access")
	}
}

func TestPossibleNumbers(t *testing.T) {
	numbers := PossibleNumbers(broadcast.Event{
		"caller":  "5551234",
		"callee":  "2000",
		"dup":     "2000",
		"name":    "Jane Doe",
		"uuid":    "3c153be1-27a5-47e5-b52b-a60a6cf99f15",
		"long":    "1234567890123456",
		"short":   "7",
		"state":   "answered",
		"counter": 42,
	})

	seen := make(map[string]bool)
	for _, n := range numbers {
		if seen[n] {
			t.Errorf("duplicate number %q", n)
		}
		seen[n] = true
	}

	if len(numbers) != 2 || !seen["5551234"] || !seen["2000"] {
		t.Errorf("expected exactly 5551234 and 2000, got %v", numbers)
	}
}
