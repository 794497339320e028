package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/checkin-front/internal/log"
)

// Cookie names used by checkin-front
const (
	SessionCookie = "checkin_session"
	BindingCookie = "checkin_auth_binding"
)

// SetSession sets the session id cookie. SameSite=Strict: the cookie is only
// ever needed on same-site requests from the app itself.
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Strict",
	})
}

// SetBinding sets the pre-login browser binding cookie. It must be Lax: the
// provider sends the browser back with a cross-site top-level navigation, on
// which Strict cookies are withheld. maxAge bounds how long a started login
// may take to come back.
func SetBinding(w http.ResponseWriter, value string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     BindingCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		MaxAge:   -1,
	})
}

// ClearSession removes the session cookie
func ClearSession(w http.ResponseWriter, secure bool) {
	Clear(w, SessionCookie, secure)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// ClearBinding removes the binding cookie
func ClearBinding(w http.ResponseWriter, secure bool) {
	Clear(w, BindingCookie, secure)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	return Get(r, SessionCookie)
}

// GetBinding retrieves the binding cookie value
func GetBinding(r *http.Request) (string, error) {
	return Get(r, BindingCookie)
}

// StripFromRequest removes the named cookies from the request's Cookie
// header, keeping any others.
func StripFromRequest(r *http.Request, names ...string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		drop := false
		for _, name := range names {
			if c.Name == name {
				drop = true
				break
			}
		}
		if !drop {
			r.AddCookie(c)
		}
	}
}
