package session

import (
	"testing"
	"time"

	"github.com/callwatch/callwatch/internal/broadcast"
	"github.com/callwatch/callwatch/internal/store"
	"github.com/callwatch/callwatch/pkg/protocol"
)

// waitForWrites polls until the connection has seen at least want frames.
func waitForWrites(t *testing.T, conn *fakeConn, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(conn.written()) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d writes, have %d", want, len(conn.written()))
}

func TestSession_DeniesEventsBeforeBinding(t *testing.T) {
	d, _, _ := setupDispatcher(t)

	conn := newFakeConn()
	sess := New(conn, d)
	defer sess.Close()

	d.deps.Hub.Publish(broadcast.Event{"method": "status_of", "cc_agent": "8100-Pre_Bind"})

	// Delivery is asynchronous; give a leaked event time to show up.
	time.Sleep(100 * time.Millisecond)
	if len(conn.written()) != 0 {
		t.Error("unbound session must receive nothing")
	}
}

func TestSession_RebindReplacesFilterContext(t *testing.T) {
	d, s, _ := setupDispatcher(t)

	seedAccount(t, s, store.Account{
		Agent: "8200-First_Bind", Username: "First_Bind", FullName: "First Bind",
		Extension: "8200",
	})
	seedAccount(t, s, store.Account{
		Agent: "8300-Second_Bind", Username: "Second_Bind", FullName: "Second Bind",
		Extension: "8300",
	})

	conn := newFakeConn()
	sess := New(conn, d)
	defer sess.Close()

	d.Dispatch(sess, frame(t, protocol.Command{Method: protocol.MethodSubscribe, Agent: "8200-First_Bind"}))
	base := len(conn.written())

	d.deps.Hub.Publish(broadcast.Event{"method": "status_of", "cc_agent": "8200-First_Bind"})
	waitForWrites(t, conn, base+1)

	// Re-subscribe as a different agent: the old binding must stop matching.
	d.Dispatch(sess, frame(t, protocol.Command{Method: protocol.MethodSubscribe, Agent: "8300-Second_Bind"}))
	afterRebind := len(conn.written())

	d.deps.Hub.Publish(broadcast.Event{"method": "status_of", "cc_agent": "8200-First_Bind"})
	d.deps.Hub.Publish(broadcast.Event{"method": "status_of", "cc_agent": "8300-Second_Bind"})

	// The subscription's queue is FIFO: once the second event arrives, the
	// first is known to have been filtered out.
	waitForWrites(t, conn, afterRebind+1)
	if len(conn.written()) != afterRebind+1 {
		t.Error("event for the previous binding leaked through after re-subscribe")
	}

	if d.deps.Hub.Len() != 1 {
		t.Errorf("re-subscribe duplicated the subscription: %d live", d.deps.Hub.Len())
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	d, _, _ := setupDispatcher(t)

	conn := newFakeConn()
	sess := New(conn, d)

	if d.deps.Hub.Len() != 1 {
		t.Fatalf("expected 1 subscription, got %d", d.deps.Hub.Len())
	}

	sess.Close()
	sess.Close()

	if d.deps.Hub.Len() != 0 {
		t.Errorf("subscription survived close: %d live", d.deps.Hub.Len())
	}
	if !conn.closed {
		t.Error("connection not closed")
	}

	// Publishing after close must not panic or deliver.
	d.deps.Hub.Publish(broadcast.Event{"method": "status_of"})
}

func TestSession_RunDispatchesUntilEOF(t *testing.T) {
	d, s, fc := setupDispatcher(t)

	seedAccount(t, s, store.Account{
		Agent: "8400-Run_One", Username: "Run_One", FullName: "Run One",
		Extension: "8400",
	})
	fc.agents = nil // empty roster is fine; the reply still goes out

	conn := newFakeConn()
	sess := New(conn, d)

	done := make(chan struct{})
	go func() {
		sess.Run()
		close(done)
	}()

	conn.frames <- frame(t, protocol.Command{Method: protocol.MethodSubscribe, Agent: "8400-Run_One"})
	close(conn.frames)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after EOF")
	}

	if sess.AgentID() != "8400-Run_One" {
		t.Errorf("frame was not dispatched: agent = %q", sess.AgentID())
	}
	if d.deps.Hub.Len() != 0 {
		t.Error("Run did not close the session on EOF")
	}
}
