package realtime

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"

	v1 "ledgerisland/contracts/sync/v1"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func recv(t *testing.T, c *Client) v1.Envelope {
	t.Helper()
	select {
	case env := <-c.Send:
		return env
	default:
		t.Fatalf("no envelope queued for conn %s", c.ConnID)
		return v1.Envelope{}
	}
}

func TestHub_PublishFansOutToEveryConnOfSession(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())

	tab1 := NewClient("sess-a", "conn-1", 4)
	tab2 := NewClient("sess-a", "conn-2", 4)
	other := NewClient("sess-b", "conn-3", 4)
	h.Subscribe(tab1)
	h.Subscribe(tab2)
	h.Subscribe(other)

	h.PublishForcedLogout("sess-a", "kicked")

	for _, c := range []*Client{tab1, tab2} {
		env := recv(t, c)
		if env.Type != v1.TypeForceLogout {
			t.Fatalf("type = %q, want %q", env.Type, v1.TypeForceLogout)
		}
		if err := env.Validate(); err != nil {
			t.Fatalf("published envelope invalid: %v", err)
		}
		var p v1.ForceLogoutPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if p.SessionID != "sess-a" || p.Reason != "kicked" {
			t.Fatalf("payload = %+v", p)
		}
	}

	select {
	case env := <-other.Send:
		t.Fatalf("cross-session delivery: %+v", env)
	default:
	}
}

func TestHub_PublishUnknownSessionIsNoop(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	h.PublishForcedLogout("nobody-home", "logout")
}

func TestHub_PublishDropsUnderBackpressure(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	c := NewClient("sess-a", "conn-1", 8)
	h.Subscribe(c)

	// Fill the queue well past capacity; publish must never block.
	for i := 0; i < 50; i++ {
		h.PublishForcedLogout("sess-a", "kicked")
	}

	if got := len(c.Send); got != cap(c.Send) {
		t.Fatalf("queued = %d, want full queue %d", got, cap(c.Send))
	}
}

func TestHub_PublishSkipsClosedClients(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	c := NewClient("sess-a", "conn-1", 4)
	h.Subscribe(c)
	c.Close()

	h.PublishForcedLogout("sess-a", "logout")

	select {
	case env := <-c.Send:
		t.Fatalf("delivery to closed client: %+v", env)
	default:
	}
}

func TestHub_UnsubscribePrunesAndCloses(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())
	c1 := NewClient("sess-a", "conn-1", 4)
	c2 := NewClient("sess-a", "conn-2", 4)
	h.Subscribe(c1)
	h.Subscribe(c2)

	h.Unsubscribe("sess-a", "conn-1")

	select {
	case <-c1.Done():
	default:
		t.Fatal("unsubscribed client not closed")
	}
	if n := h.ConnCount("sess-a"); n != 1 {
		t.Fatalf("ConnCount = %d, want 1", n)
	}

	h.Unsubscribe("sess-a", "conn-2")
	if n := h.ConnCount("sess-a"); n != 0 {
		t.Fatalf("ConnCount after prune = %d, want 0", n)
	}

	// Idempotent.
	h.Unsubscribe("sess-a", "conn-2")
	h.Unsubscribe("sess-a", "never-existed")
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	t.Parallel()

	h := NewHub(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		connID := NewRandomHex(4)
		go func() {
			defer wg.Done()
			c := NewClient("sess-a", connID, 4)
			h.Subscribe(c)
			h.Unsubscribe("sess-a", connID)
		}()
		go func() {
			defer wg.Done()
			h.PublishForcedLogout("sess-a", "superseded")
		}()
	}
	wg.Wait()
}
