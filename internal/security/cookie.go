package security

import (
	"net/http"
	"time"
)

// SessionCookieName carries the session token on every request.
const SessionCookieName = "session_id"

// GetCookie returns the named cookie's value or "" when absent.
func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetSessionCookie attaches the session token to the response. A zero ttl
// produces a cookie without Max-Age, mirroring the never-expire session
// configuration.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie immediately.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
