package authapi

import (
	"net/http"
	"time"

	"ledgerisland/internal/auth/gate"
)

// setSessionCookies hands the browser its three session cookies.
//
// The secret stays HttpOnly; scripts never see it. The session id and the
// control tag are deliberately script-visible so the page can open the sync
// channel, and neither grants any session authority on its own.
func setSessionCookies(w http.ResponseWriter, secret, sessionID, controlTag string, ttl time.Duration) {
	maxAge := 0
	if ttl > 0 {
		maxAge = int(ttl / time.Second)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     gate.CookieSession,
		Value:    secret,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     gate.CookieSessionID,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     gate.CookieControl,
		Value:    controlTag,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	})
}
