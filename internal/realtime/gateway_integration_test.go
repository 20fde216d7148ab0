package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	v1 "ledgerisland/contracts/sync/v1"
	"ledgerisland/internal/auth/session"
	"ledgerisland/internal/security/token"
)

const gwTestControlSecret = "gateway integration control key"

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	t.Setenv("LEDGER_WS_ORIGIN_REQUIRED", "false")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGateway(log, NewHub(log), gwTestControlSecret)
}

func startTestServer(t *testing.T, gw *Gateway) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	return httptest.NewServer(mux)
}

func dialSync(t *testing.T, baseHTTPURL, sessionID, ctl string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	q := u.Query()
	if strings.TrimSpace(sessionID) != "" {
		q.Set("sid", sessionID)
	}
	if strings.TrimSpace(ctl) != "" {
		q.Set("ctl", ctl)
	}
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
	})
}

func mustControlTag(t *testing.T, controlSecret, sessionID string) string {
	t.Helper()
	tag, err := token.MakeControlTag(controlSecret, sessionID)
	if err != nil {
		t.Fatalf("MakeControlTag: %v", err)
	}
	return tag
}

func expect401(t *testing.T, resp *http.Response, err error) {
	t.Helper()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestGateway_MissingParamsRejected(t *testing.T) {
	gw := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialSync(t, ts.URL, "", "")
	expect401(t, resp, err)

	_, resp, err = dialSync(t, ts.URL, ulid.Make().String(), "")
	expect401(t, resp, err)
}

func TestGateway_ForgedTagRejected(t *testing.T) {
	gw := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	sid := ulid.Make().String()

	// Tag minted under a different key must not admit.
	forged := mustControlTag(t, "a different control key", sid)
	_, resp, err := dialSync(t, ts.URL, sid, forged)
	expect401(t, resp, err)

	// Tag for another session id must not admit either.
	other := mustControlTag(t, gwTestControlSecret, ulid.Make().String())
	_, resp, err = dialSync(t, ts.URL, sid, other)
	expect401(t, resp, err)
}

func TestGateway_MalformedSessionIDRejected(t *testing.T) {
	gw := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialSync(t, ts.URL, "not-a-ulid", "not-a-tag")
	expect401(t, resp, err)
}

func TestGateway_ValidTagReceivesForcedLogout(t *testing.T) {
	gw := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	sid := ulid.Make().String()
	tag := mustControlTag(t, gwTestControlSecret, sid)

	conn, resp, err := dialSync(t, ts.URL, sid, tag)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("authorized dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	waitForConn(t, gw.Hub(), sid, 1)

	gw.Hub().PublishForcedLogout(sid, session.ReasonKicked)

	env := readEnvelopeWS(t, conn)
	if env.Type != v1.TypeForceLogout {
		t.Fatalf("type = %q, want %q", env.Type, v1.TypeForceLogout)
	}
	var p v1.ForceLogoutPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.SessionID != sid || p.Reason != session.ReasonKicked {
		t.Fatalf("payload = %+v", p)
	}
}

func TestGateway_KickOthersReachesOldDevice(t *testing.T) {
	gw := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	cfg := session.DefaultConfig()
	cfg.ControlSecret = gwTestControlSecret
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := session.NewService(cfg, session.NewMemoryStore(), gw.Hub(), log)

	ctx := context.Background()
	now := time.Now().UTC()

	old, err := svc.Create(ctx, now, session.CreateParams{UserID: "u1"})
	if err != nil {
		t.Fatalf("create old session: %v", err)
	}
	fresh, err := svc.Create(ctx, now, session.CreateParams{UserID: "u1"})
	if err != nil {
		t.Fatalf("create fresh session: %v", err)
	}

	// Old device is connected to the sync channel.
	oldTag := mustControlTag(t, gwTestControlSecret, old.SessionID)
	conn, resp, err := dialSync(t, ts.URL, old.SessionID, oldTag)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("old device dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	waitForConn(t, gw.Hub(), old.SessionID, 1)

	if err := svc.KickOthers(ctx, "u1", fresh.SessionID); err != nil {
		t.Fatalf("KickOthers: %v", err)
	}

	env := readEnvelopeWS(t, conn)
	if env.Type != v1.TypeForceLogout {
		t.Fatalf("type = %q, want %q", env.Type, v1.TypeForceLogout)
	}
	var p v1.ForceLogoutPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.SessionID != old.SessionID || p.Reason != session.ReasonKicked {
		t.Fatalf("payload = %+v", p)
	}
}

func TestGateway_InboundEnvelopeUnsupported(t *testing.T) {
	gw := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	sid := ulid.Make().String()
	tag := mustControlTag(t, gwTestControlSecret, sid)

	conn, resp, err := dialSync(t, ts.URL, sid, tag)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("authorized dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	probe := v1.Envelope{
		V:       v1.Version,
		Type:    "message.send",
		ID:      "probe-1",
		TS:      time.Now().UTC(),
		Payload: json.RawMessage(`{}`),
	}
	b, err := json.Marshal(probe)
	if err != nil {
		t.Fatalf("marshal probe: %v", err)
	}
	wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = conn.Write(wctx, websocket.MessageText, b)
	wcancel()
	if err != nil {
		t.Fatalf("conn.Write: %v", err)
	}

	env := readEnvelopeWS(t, conn)
	if env.Type != v1.TypeError {
		t.Fatalf("type = %q, want %q", env.Type, v1.TypeError)
	}
	var p v1.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Code != "unsupported" {
		t.Fatalf("code = %q, want unsupported", p.Code)
	}
}

func readEnvelopeWS(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("conn.Read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

// waitForConn polls until the hub sees the expected number of connections.
// Subscribe happens inside the server's handler goroutine, so the dial
// returning does not guarantee registration is visible yet.
func waitForConn(t *testing.T, h *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.ConnCount(sessionID) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s: conns = %d, want %d", sessionID, h.ConnCount(sessionID), want)
}
