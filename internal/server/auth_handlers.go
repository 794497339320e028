package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/checkin-front/internal/auth"
	"github.com/dgellow/checkin-front/internal/browserauth"
	"github.com/dgellow/checkin-front/internal/config"
	"github.com/dgellow/checkin-front/internal/cookie"
	"github.com/dgellow/checkin-front/internal/crypto"
	jsonwriter "github.com/dgellow/checkin-front/internal/json"
	"github.com/dgellow/checkin-front/internal/log"
	"github.com/dgellow/checkin-front/internal/storage"
)

// AuthHandlers serves the browser side of the login: the popup entry point,
// the provider callback, the completion page, logout and session status.
type AuthHandlers struct {
	bridge       *auth.SessionBridge
	redirectPath string
	completePath string
	secure       bool
}

// SessionInfo is the body of GET /oauth/session
type SessionInfo struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewAuthHandlers creates the auth handlers on top of bridge
func NewAuthHandlers(cfg config.Config, bridge *auth.SessionBridge) *AuthHandlers {
	return &AuthHandlers{
		bridge:       bridge,
		redirectPath: cfg.OAuth.RedirectPath,
		completePath: browserauth.CompletePath(cfg.OAuth.RedirectPath),
		secure:       cfg.CookieSecure(),
	}
}

// BeginHandler binds the browser with a fresh cookie and sends the popup
// to the provider's authorize page.
func (h *AuthHandlers) BeginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use GET")
		return
	}

	binding, err := h.bridge.NewBinding()
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to create browser binding", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start authorization")
		return
	}

	req, err := h.bridge.Begin(r.Context(), binding)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to start authorization", map[string]any{
			"error": err.Error(),
		})
		if errors.Is(err, &auth.AuthError{Code: auth.CodeSessionStoreFailed}) {
			jsonwriter.WriteServiceUnavailable(w, "Session store unavailable")
			return
		}
		jsonwriter.WriteInternalServerError(w, "Failed to start authorization")
		return
	}

	cookie.SetBinding(w, binding, h.bridge.BindingMaxAge(), h.secure)
	http.Redirect(w, r, req.ProviderAuthorizeURL, http.StatusFound)
}

// CallbackHandler owns everything under the redirect path: the provider
// callback itself and the completion page the popup ends on.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use GET")
		return
	}

	switch strings.TrimRight(r.URL.Path, "/") {
	case h.completePath:
		h.CompleteHandler(w, r)
	case strings.TrimRight(h.redirectPath, "/"):
		h.handleCallback(w, r)
	default:
		jsonwriter.WriteNotFound(w, "Not found")
	}
}

func (h *AuthHandlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		h.bridge.Denied(providerErr, q.Get("error_description"))
		cookie.ClearBinding(w, h.secure)
		h.redirectComplete(w, r, browserauth.FailureFragment(providerErr))
		return
	}

	binding, _ := cookie.GetBinding(r)
	session, err := h.bridge.HandleCallback(r.Context(), q.Get("code"), q.Get("state"), binding)
	if err != nil {
		reason := auth.CodeOf(err)
		if reason == "" {
			reason = "unknown_error"
		}
		h.redirectComplete(w, r, browserauth.FailureFragment(reason))
		return
	}

	cookie.SetSession(w, session.ID, h.bridge.CookieMaxAge(), h.secure)
	cookie.ClearBinding(w, h.secure)
	h.redirectComplete(w, r, browserauth.SuccessFragment())
}

func (h *AuthHandlers) redirectComplete(w http.ResponseWriter, r *http.Request, fragment string) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.completePath+"#"+fragment, http.StatusFound)
}

// CompleteHandler renders the page the popup lands on. The outcome lives in
// the URL fragment, which only the opener reads.
func (h *AuthHandlers) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; script-src 'nonce-"+nonce+"'; style-src 'nonce-"+nonce+"'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	if err := completePageTemplate.Execute(w, CompletePageData{Nonce: nonce, MarkerKey: browserauth.MarkerKey}); err != nil {
		log.LogErrorWithFields("auth", "Failed to render completion page", map[string]any{
			"error": err.Error(),
		})
	}
}

// LogoutHandler destroys the session and clears the cookie
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use POST")
		return
	}

	id, _ := cookie.GetSession(r)
	if err := h.bridge.Logout(r.Context(), id); err != nil {
		log.LogErrorWithFields("auth", "Logout failed", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Session store unavailable")
		return
	}

	cookie.ClearSession(w, h.secure)
	w.WriteHeader(http.StatusNoContent)
}

// SessionHandler reports the current session, extending it like any other
// authenticated request.
func (h *AuthHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use GET")
		return
	}

	id, err := cookie.GetSession(r)
	if err != nil || id == "" {
		jsonwriter.WriteSessionRequired(w, "Not signed in", LoginPath)
		return
	}

	session, err := h.bridge.Touch(r.Context(), id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		cookie.ClearSession(w, h.secure)
		jsonwriter.WriteSessionRequired(w, "Session expired", LoginPath)
		return
	}
	if err != nil {
		log.LogErrorWithFields("auth", "Session lookup failed", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Session store unavailable")
		return
	}

	_ = jsonwriter.Write(w, SessionInfo{UserID: session.UserID, ExpiresAt: session.ExpiresAt})
}
