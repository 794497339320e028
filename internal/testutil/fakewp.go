package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// FakeWordPress simulates the WP OAuth Server plugin endpoints plus a REST
// API that echoes what it received. Codes are single use, like the real
// provider.
type FakeWordPress struct {
	*httptest.Server

	ClientID     string
	ClientSecret string
	UserID       string
	ExpiresIn    atomic.Int32

	// Hops is the number of intermediate login pages the authorize endpoint
	// bounces through before redirecting back.
	Hops int

	Deny         atomic.Bool
	FailToken    atomic.Bool
	FailUserInfo atomic.Bool

	TokenRequests   atomic.Int32
	RefreshRequests atomic.Int32

	mu            sync.Mutex
	next          int
	codes         map[string]bool
	accessTokens  map[string]bool
	refreshTokens map[string]bool
}

// EchoResponse is the body served by the fake REST API
type EchoResponse struct {
	Path          string `json:"path"`
	Authorization string `json:"authorization"`
	Cookie        string `json:"cookie"`
	ForwardedHost string `json:"forwarded_host"`
}

// NewFakeWordPress starts the fake provider
func NewFakeWordPress() *FakeWordPress {
	f := &FakeWordPress{
		ClientID:      "checkin-client",
		ClientSecret:  "checkin-secret",
		UserID:        "42",
		codes:         make(map[string]bool),
		accessTokens:  make(map[string]bool),
		refreshTokens: make(map[string]bool),
	}

	f.ExpiresIn.Store(3600)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth/authorize", f.handleAuthorize)
	mux.HandleFunc("GET /wp-login/step", f.handleStep)
	mux.HandleFunc("POST /oauth/token", f.handleToken)
	mux.HandleFunc("GET /oauth/me", f.handleMe)
	mux.HandleFunc("/", f.handleEcho)

	f.Server = httptest.NewServer(mux)
	return f
}

// IssueCode mints an authorization code as if a user had consented
func (f *FakeWordPress) IssueCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	code := fmt.Sprintf("code-%d", f.next)
	f.codes[code] = true
	return code
}

func (f *FakeWordPress) mint(prefix string, into map[string]bool) string {
	f.next++
	token := fmt.Sprintf("%s-%d", prefix, f.next)
	into[token] = true
	return token
}

// RevokeAccessTokens invalidates every issued access token
func (f *FakeWordPress) RevokeAccessTokens() {
	f.mu.Lock()
	clear(f.accessTokens)
	f.mu.Unlock()
}

func (f *FakeWordPress) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if q.Get("client_id") != f.ClientID || redirectURI == "" {
		http.Error(w, "invalid client", http.StatusBadRequest)
		return
	}

	back := url.Values{}
	back.Set("state", q.Get("state"))
	if f.Deny.Load() {
		back.Set("error", "access_denied")
	} else {
		back.Set("code", f.IssueCode())
	}
	final := redirectURI + "?" + back.Encode()

	if f.Hops > 0 {
		http.Redirect(w, r, "/wp-login/step?n=1&next="+url.QueryEscape(final), http.StatusFound)
		return
	}
	http.Redirect(w, r, final, http.StatusFound)
}

func (f *FakeWordPress) handleStep(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	next := r.URL.Query().Get("next")
	if n >= f.Hops {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/wp-login/step?n=%d&next=%s", n+1, url.QueryEscape(next)), http.StatusFound)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":             code,
		"error_description": description,
	})
}

func (f *FakeWordPress) clientAuthenticated(r *http.Request) bool {
	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.FormValue("client_id"), r.FormValue("client_secret")
	}
	return id == f.ClientID && secret == f.ClientSecret
}

func (f *FakeWordPress) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if f.FailToken.Load() {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "token endpoint unavailable")
		return
	}
	if !f.clientAuthenticated(r) {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "Client authentication failed")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.FormValue("grant_type") {
	case "authorization_code":
		f.TokenRequests.Add(1)
		code := r.FormValue("code")
		if !f.codes[code] {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Invalid or already used authorization code")
			return
		}
		delete(f.codes, code)
	case "refresh_token":
		f.RefreshRequests.Add(1)
		rt := r.FormValue("refresh_token")
		if !f.refreshTokens[rt] {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Invalid refresh token")
			return
		}
		delete(f.refreshTokens, rt)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  f.mint("wp-access", f.accessTokens),
		"refresh_token": f.mint("wp-refresh", f.refreshTokens),
		"token_type":    "Bearer",
		"expires_in":    f.ExpiresIn.Load(),
		"scope":         "basic",
	})
}

func (f *FakeWordPress) validBearer(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accessTokens[token]
}

func (f *FakeWordPress) handleMe(w http.ResponseWriter, r *http.Request) {
	if f.FailUserInfo.Load() {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	if !f.validBearer(r) {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ID":           f.UserID,
		"user_login":   "checkin-staff",
		"user_email":   "staff@example.com",
		"display_name": "Check-in Staff",
	})
}

func (f *FakeWordPress) handleEcho(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(EchoResponse{
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Cookie:        r.Header.Get("Cookie"),
		ForwardedHost: r.Header.Get("X-Forwarded-Host"),
	})
}
