// Package authapi exposes the HTTP surface of the session lifecycle:
// login completion, logout, and the kick-others control endpoint.
package authapi

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"ledgerisland/internal/auth/gate"
	"ledgerisland/internal/auth/session"
	"ledgerisland/internal/security/token"
)

const maxBodyBytes = 16 << 10

// Identity is a verified external identity, as handed over by whichever
// provider callback completed. The core never sees credentials; it trusts
// the provider's verdict and records who logged in.
type Identity struct {
	UserID     string
	Provider   string
	ProviderID string
	Email      string
	Name       string
}

// Handler wires the session service to HTTP.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
	sessCfg  session.Config
}

// NewHandler constructs the auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessCfg session.Config, sessions *session.Service) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, cfg: cfg, sessions: sessions, sessCfg: sessCfg}
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/logout", h.handleLogout)
	mux.HandleFunc("/control/kick-others", h.handleKickOthers)
	if h.cfg.DevLoginEnabled {
		mux.HandleFunc("/auth/dev-login", h.handleDevLogin)
	}
}

// FinishLogin completes a login for a verified identity: one fresh session
// supersedes every other active session of the user, the browser gets its
// three cookies, and a success audit row is appended. Audit write failure
// never fails the login.
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request, id Identity) {
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()

	var ttl *time.Duration
	if h.sessCfg.DefaultTTL > 0 {
		d := h.sessCfg.DefaultTTL
		ttl = &d
	}

	created, err := h.sessions.Create(r.Context(), now, session.CreateParams{
		UserID:           id.UserID,
		UserAgent:        ua,
		IP:               ip,
		InvalidateOthers: true,
		TTL:              ttl,
	})
	if err != nil {
		h.log.Error("auth.login.create.fail", "err", err, "user_id", id.UserID, "provider", id.Provider)
		h.auditLogin(r, id, now, ip, ua, false, err.Error())
		writeError(w, http.StatusInternalServerError, "session_create_failed", "could not create session")
		return
	}

	tag, err := token.MakeControlTag(h.sessCfg.ControlSecret, created.SessionID)
	if err != nil {
		// The session exists but the browser cannot receive its cookies.
		// Roll it back so no orphaned active session lingers.
		h.log.Error("auth.login.tag.fail", "err", err, "session_id", created.SessionID)
		_ = h.sessions.Invalidate(r.Context(), created.SessionID)
		h.auditLogin(r, id, now, ip, ua, false, "control tag")
		writeError(w, http.StatusInternalServerError, "session_create_failed", "could not create session")
		return
	}

	setSessionCookies(w, created.Secret, created.SessionID, tag, h.sessCfg.DefaultTTL)
	h.auditLogin(r, id, now, ip, ua, true, "")

	h.log.Info("auth.login.ok", "user_id", id.UserID, "provider", id.Provider, "session_id", created.SessionID)
	http.Redirect(w, r, "/", http.StatusFound)
}

// FailLogin records a failed provider exchange and sends the browser back
// to the landing page.
func (h *Handler) FailLogin(w http.ResponseWriter, r *http.Request, id Identity, reason string) {
	now := time.Now().UTC()
	h.auditLogin(r, id, now, clientIP(r, h.cfg.TrustProxy), r.UserAgent(), false, reason)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) auditLogin(r *http.Request, id Identity, now time.Time, ip net.IP, ua string, success bool, errText string) {
	a := session.LoginAudit{
		UserID:    id.UserID,
		Provider:  id.Provider,
		LoggedAt:  now,
		IP:        ip,
		UserAgent: ua,
		Success:   success,
	}
	if id.ProviderID != "" {
		a.ProviderID = &id.ProviderID
	}
	if id.Email != "" {
		a.Email = &id.Email
	}
	if id.Name != "" {
		a.Name = &id.Name
	}
	if errText != "" {
		a.Error = &errText
	}
	// Audit is best-effort here; the service already counts and logs failures.
	_ = h.sessions.Audit(r.Context(), a)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	if c, err := r.Cookie(gate.CookieSessionID); err == nil {
		if sid := strings.TrimSpace(c.Value); sid != "" {
			if err := h.sessions.Invalidate(r.Context(), sid); err != nil {
				// Cookies are cleared regardless; the row stays for the
				// idle reaper if storage hiccupped.
				h.log.Error("auth.logout.invalidate.fail", "err", err, "session_id", sid)
			}
		}
	}

	gate.ClearSessionCookies(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

type kickOthersRequest struct {
	UserID        string `json:"user_id"`
	KeepSessionID string `json:"keep_session_id"`
}

// handleKickOthers deactivates every other session of the user and notifies
// each of them on the sync channel. The route sits behind the request gate,
// so the caller has already proven a live session.
func (h *Handler) handleKickOthers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req kickOthersRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	keep := strings.TrimSpace(req.KeepSessionID)
	if keep == "" {
		// Default to the caller's own session.
		if c, err := r.Cookie(gate.CookieSessionID); err == nil {
			keep = strings.TrimSpace(c.Value)
		}
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || keep == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id and keep_session_id required")
		return
	}

	if err := h.sessions.KickOthers(r.Context(), userID, keep); err != nil {
		h.log.Error("auth.kick_others.fail", "err", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "kick_failed", "could not kick other sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type devLoginRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// handleDevLogin completes a login without an identity provider. Mounted
// only when LEDGER_AUTH_DEV_LOGIN is set.
func (h *Handler) handleDevLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req devLoginRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}

	h.FinishLogin(w, r, Identity{
		UserID:     strings.TrimSpace(req.UserID),
		Provider:   "dev",
		ProviderID: strings.TrimSpace(req.UserID),
		Email:      strings.TrimSpace(req.Email),
		Name:       strings.TrimSpace(req.Name),
	})
}

// ---- client address ----

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
