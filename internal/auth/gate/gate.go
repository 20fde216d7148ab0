// Package gate enforces session validity on every protected request.
//
// The gate sits in front of the page and API routes. Requests without a
// live session are redirected to the landing page with their session
// cookies cleared, so a revoked browser converges on the next navigation
// even if it never heard the websocket notice.
package gate

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Cookie names shared with the login and logout handlers.
const (
	CookieSession   = "sid"
	CookieSessionID = "sid_id"
	CookieControl   = "ctl"
)

// RedirectPath is where unauthenticated requests are sent.
const RedirectPath = "/"

// DefaultAllowlist covers the routes a logged-out browser must still reach:
// the landing page, login endpoints, the health probes and metrics, and
// static assets.
var DefaultAllowlist = []string{
	"/",
	"/login",
	"/auth/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/static/",
	"/favicon.ico",
}

// SessionValidator is the slice of the session service the gate needs.
type SessionValidator interface {
	Validate(ctx context.Context, now time.Time, rawSecret, ip, userAgent string) (bool, error)
}

// Gate is the request middleware.
type Gate struct {
	log       *slog.Logger
	sessions  SessionValidator
	allowlist []string
}

// New constructs a Gate. A nil allowlist uses DefaultAllowlist.
func New(log *slog.Logger, sessions SessionValidator, allowlist []string) *Gate {
	if log == nil {
		log = slog.Default()
	}
	if allowlist == nil {
		allowlist = DefaultAllowlist
	}
	return &Gate{log: log, sessions: sessions, allowlist: allowlist}
}

// Wrap returns a handler that checks the session cookie before next.
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.allowed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		c, err := r.Cookie(CookieSession)
		if err != nil || strings.TrimSpace(c.Value) == "" {
			// No cookie: plain redirect, nothing to clear or look up.
			http.Redirect(w, r, RedirectPath, http.StatusFound)
			return
		}

		ok, err := g.sessions.Validate(r.Context(), time.Now().UTC(), c.Value, clientIP(r), r.UserAgent())
		if err != nil {
			// Storage failure is treated as unauthenticated rather than 500:
			// the browser lands on the login page and can retry.
			g.log.Error("gate.validate.fail", "err", err, "path", r.URL.Path)
		}
		if err != nil || !ok {
			ClearSessionCookies(w)
			http.Redirect(w, r, RedirectPath, http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gate) allowed(path string) bool {
	for _, p := range g.allowlist {
		if p == "" {
			continue
		}
		// Entries ending in "/" are prefixes; others match exactly.
		// "/" itself matches only the landing page.
		if p == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// ClearSessionCookies expires all three session cookies. Max-Age=-1 tells
// the browser to delete immediately; attributes must match how the cookies
// were set or some browsers keep the old ones.
func ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieSession,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CookieSessionID,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CookieControl,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
