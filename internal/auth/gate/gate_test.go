package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubValidator struct {
	ok  bool
	err error

	calls   int
	secret  string
	ip      string
	ua      string
	lastNow time.Time
}

func (s *stubValidator) Validate(_ context.Context, now time.Time, rawSecret, ip, ua string) (bool, error) {
	s.calls++
	s.secret = rawSecret
	s.ip = ip
	s.ua = ua
	s.lastNow = now
	return s.ok, s.err
}

func newTestGate(v SessionValidator) *Gate {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, v, nil)
}

func serve(t *testing.T, g *Gate, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	g.Wrap(next).ServeHTTP(rec, req)
	return rec, reached
}

func cookieCleared(t *testing.T, rec *httptest.ResponseRecorder, name string) bool {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

func TestGate_AllowlistedPathsBypassValidation(t *testing.T) {
	t.Parallel()

	v := &stubValidator{ok: false}
	g := newTestGate(v)

	for _, path := range []string{"/", "/login", "/auth/google/callback", "/healthz", "/readyz", "/metrics", "/static/app.css", "/favicon.ico"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec, reached := serve(t, g, req)
		if !reached || rec.Code != http.StatusOK {
			t.Fatalf("path %q: reached=%v code=%d, want pass-through", path, reached, rec.Code)
		}
	}
	if v.calls != 0 {
		t.Fatalf("validator called %d times for allowlisted paths", v.calls)
	}
}

func TestGate_RootPrefixDoesNotAllowEverything(t *testing.T) {
	t.Parallel()

	v := &stubValidator{ok: false}
	g := newTestGate(v)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	rec, reached := serve(t, g, req)
	if reached {
		t.Fatal("/accounts passed the gate without a session")
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d, want 302", rec.Code)
	}
}

func TestGate_MissingCookieRedirectsWithoutLookup(t *testing.T) {
	t.Parallel()

	v := &stubValidator{ok: true}
	g := newTestGate(v)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	rec, reached := serve(t, g, req)

	if reached {
		t.Fatal("request passed the gate without a cookie")
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != RedirectPath {
		t.Fatalf("Location = %q, want %q", loc, RedirectPath)
	}
	if v.calls != 0 {
		t.Fatalf("validator called %d times without a cookie", v.calls)
	}
	// Nothing to clear when the cookie was absent.
	if cookieCleared(t, rec, CookieSession) {
		t.Fatal("cleared cookies on a cookie-less request")
	}
}

func TestGate_InvalidSessionClearsCookiesAndRedirects(t *testing.T) {
	t.Parallel()

	v := &stubValidator{ok: false}
	g := newTestGate(v)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.AddCookie(&http.Cookie{Name: CookieSession, Value: "stale-secret"})
	rec, reached := serve(t, g, req)

	if reached {
		t.Fatal("invalid session passed the gate")
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d, want 302", rec.Code)
	}
	for _, name := range []string{CookieSession, CookieSessionID, CookieControl} {
		if !cookieCleared(t, rec, name) {
			t.Fatalf("cookie %q not cleared", name)
		}
	}
	if v.secret != "stale-secret" {
		t.Fatalf("validator saw secret %q", v.secret)
	}
}

func TestGate_ValidatorErrorFailsClosed(t *testing.T) {
	t.Parallel()

	v := &stubValidator{ok: false, err: errors.New("pool exhausted")}
	g := newTestGate(v)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.AddCookie(&http.Cookie{Name: CookieSession, Value: "some-secret"})
	rec, reached := serve(t, g, req)

	if reached {
		t.Fatal("request passed the gate despite a storage error")
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("code = %d, want 302", rec.Code)
	}
	if !cookieCleared(t, rec, CookieSession) {
		t.Fatal("session cookie not cleared on error")
	}
}

func TestGate_ValidSessionPassesThrough(t *testing.T) {
	t.Parallel()

	v := &stubValidator{ok: true}
	g := newTestGate(v)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.RemoteAddr = "203.0.113.9:4411"
	req.Header.Set("User-Agent", "ledger-test/1.0")
	req.AddCookie(&http.Cookie{Name: CookieSession, Value: "live-secret"})
	rec, reached := serve(t, g, req)

	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("reached=%v code=%d, want pass-through", reached, rec.Code)
	}
	if v.ip != "203.0.113.9" {
		t.Fatalf("validator saw ip %q", v.ip)
	}
	if v.ua != "ledger-test/1.0" {
		t.Fatalf("validator saw ua %q", v.ua)
	}
}
