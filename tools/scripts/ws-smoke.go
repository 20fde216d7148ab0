// Package main provides a CI-friendly smoke test for the sync channel.
//
// It validates:
//   - handshake + subprotocol selection with a valid control tag
//   - rejection of a forged control tag (401, no upgrade)
//   - optionally, delivery of a force_logout notice for the session
//     (trigger one out of band, e.g. POST /control/kick-others)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "ledgerisland/contracts/sync/v1"
	"ledgerisland/internal/security/token"
)

const (
	subprotocol  = "ledgerisland.sync.v1"
	maxReadBytes = 64 << 10
)

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		sid     = flag.String("sid", "", "Session id to subscribe as (required)")
		secret  = flag.String("secret", "", "Control secret; defaults to LEDGER_CONTROL_SECRET")
		wait    = flag.Duration("wait", 0, "How long to wait for a force_logout notice (0 = don't wait)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*sid) == "" {
		fatalf("-sid is required")
	}
	key := strings.TrimSpace(*secret)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("LEDGER_CONTROL_SECRET"))
	}
	if key == "" {
		fatalf("control secret missing: pass -secret or set LEDGER_CONTROL_SECRET")
	}

	tag, err := token.MakeControlTag(key, *sid)
	if err != nil {
		fatalf("mint control tag: %v", err)
	}

	root := context.Background()

	// A forged tag must never upgrade.
	forged, err := token.MakeControlTag(key+"-forged", *sid)
	if err != nil {
		fatalf("mint forged tag: %v", err)
	}
	if status := dialExpectReject(root, *wsURL, *origin, *sid, forged, *timeout); status != http.StatusUnauthorized {
		fatalf("forged tag: expected 401, got %d", status)
	}
	if *verbose {
		fmt.Println("forged tag rejected with 401")
	}

	// The real tag must admit and negotiate the subprotocol.
	conn := mustConnect(root, *wsURL, *origin, *sid, tag, *timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if *verbose {
		fmt.Printf("connected: sid=%s subprotocol=%s\n", *sid, conn.Subprotocol())
	}

	if *wait > 0 {
		waitForForceLogout(root, conn, *sid, *wait)
		fmt.Printf("OK: sid=%s received force_logout\n", *sid)
		return
	}

	fmt.Printf("OK: sid=%s admitted\n", *sid)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func syncURL(wsURL, sid, tag string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse url: %v", err)
	}
	q := u.Query()
	q.Set("sid", sid)
	q.Set("ctl", tag)
	u.RawQuery = q.Encode()
	return u.String()
}

func dialExpectReject(parent context.Context, wsURL, origin, sid, tag string, stepTimeout time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, syncURL(wsURL, sid, tag), &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		fatalf("forged tag was admitted")
	}
	if resp == nil {
		fatalf("forged tag dial: no HTTP response: %v", err)
	}
	return resp.StatusCode
}

func mustConnect(parent context.Context, wsURL, origin, sid, tag string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, syncURL(wsURL, sid, tag), &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if sp := conn.Subprotocol(); sp != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", sp, subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)
	return conn
}

func waitForForceLogout(parent context.Context, conn *websocket.Conn, sid string, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			fatalf("waiting for force_logout: %v", err)
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			fatalf("bad envelope json: %v", err)
		}
		if err := env.Validate(); err != nil {
			fatalf("bad envelope: %v", err)
		}

		switch env.Type {
		case v1.TypeForceLogout:
			var p v1.ForceLogoutPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				fatalf("bad force_logout payload: %v", err)
			}
			if p.SessionID != sid {
				fatalf("force_logout for wrong session: got=%q want=%q", p.SessionID, sid)
			}
			return
		case v1.TypeError:
			var ep v1.ErrorPayload
			_ = json.Unmarshal(env.Payload, &ep)
			fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
		default:
			// Ignore anything else while waiting.
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
