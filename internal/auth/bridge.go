package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/dgellow/checkin-front/internal/browserauth"
	"github.com/dgellow/checkin-front/internal/config"
	"github.com/dgellow/checkin-front/internal/crypto"
	"github.com/dgellow/checkin-front/internal/idp"
	"github.com/dgellow/checkin-front/internal/log"
	"github.com/dgellow/checkin-front/internal/storage"
)

// TokenRefreshThreshold is how long before access token expiry we refresh it
const TokenRefreshThreshold = 5 * time.Minute

// touchGranularity limits sliding-expiry writes to one per session per minute
const touchGranularity = time.Minute

// ErrNoSession is returned by Touch when the cookie does not name a live
// session. It wraps storage.ErrSessionNotFound.
var ErrNoSession = fmt.Errorf("no active session: %w", storage.ErrSessionNotFound)

// AuthorizationRequest is everything needed to send the browser to the provider
type AuthorizationRequest struct {
	ProviderAuthorizeURL string
	ClientID             string
	RedirectURI          string
	State                string
}

// SessionBridge turns a provider authorization code into a server-side
// session and keeps that session alive afterwards.
type SessionBridge struct {
	provider    idp.Provider
	store       storage.Storage
	stateSigner crypto.TokenSigner
	binding     crypto.CSRFProtection
	stateTTL    time.Duration
	idleTimeout time.Duration
	maxLifetime time.Duration

	refreshes singleflight.Group
	now       func() time.Time
}

// NewSessionBridge creates a bridge. The state secret is expanded into
// separate keys for state tokens and binding values.
func NewSessionBridge(cfg config.Config, provider idp.Provider, store storage.Storage) (*SessionBridge, error) {
	secret := []byte(cfg.OAuth.StateSecret)
	stateKey, err := crypto.DeriveKey(secret, crypto.PurposeState)
	if err != nil {
		return nil, err
	}
	bindingKey, err := crypto.DeriveKey(secret, crypto.PurposeBinding)
	if err != nil {
		return nil, err
	}

	return &SessionBridge{
		provider:    provider,
		store:       store,
		stateSigner: crypto.NewTokenSigner(stateKey, cfg.OAuth.StateTTL),
		binding:     crypto.NewCSRFProtection(bindingKey, cfg.OAuth.StateTTL),
		stateTTL:    cfg.OAuth.StateTTL,
		idleTimeout: cfg.Session.IdleTimeout,
		maxLifetime: cfg.Session.MaxLifetime,
		now:         time.Now,
	}, nil
}

// NewBinding mints the value for the browser binding cookie
func (b *SessionBridge) NewBinding() (string, error) {
	return b.binding.Generate()
}

// BindingMaxAge is the binding cookie lifetime. It matches the state TTL so
// a state that is still valid never arrives with an expired binding.
func (b *SessionBridge) BindingMaxAge() time.Duration {
	return b.stateTTL
}

// CookieMaxAge is the session cookie lifetime. The server enforces the idle
// timeout; the cookie only needs to outlive the absolute cap.
func (b *SessionBridge) CookieMaxAge() time.Duration {
	return b.maxLifetime
}

// Begin issues a state bound to the browser and builds the provider URL
func (b *SessionBridge) Begin(ctx context.Context, binding string) (*AuthorizationRequest, error) {
	if !b.binding.Validate(binding) {
		return nil, fmt.Errorf("invalid browser binding")
	}

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state nonce: %w", err)
	}

	st := browserauth.AuthorizationState{
		Nonce:   nonce,
		Binding: crypto.Fingerprint(binding),
	}
	state, err := b.stateSigner.Sign(st)
	if err != nil {
		return nil, fmt.Errorf("failed to sign state: %w", err)
	}

	pending := browserauth.PendingAuth{Nonce: st.Nonce, Binding: st.Binding}
	if err := b.store.PutPending(ctx, pending, b.stateTTL); err != nil {
		return nil, newAuthError(CodeSessionStoreFailed, "failed to record pending authorization", err)
	}

	authURL := b.provider.AuthURL(state)
	req := &AuthorizationRequest{
		ProviderAuthorizeURL: authURL,
		State:                state,
	}
	if u, err := url.Parse(authURL); err == nil {
		req.ClientID = u.Query().Get("client_id")
		req.RedirectURI = u.Query().Get("redirect_uri")
	}

	log.LogDebugWithFields("auth", "Authorization started", map[string]any{
		"provider": b.provider.Type(),
	})
	return req, nil
}

// verifyState checks the signed state against the browser binding and
// consumes the pending record. Any mismatch is invalid_state.
func (b *SessionBridge) verifyState(ctx context.Context, state, binding string) error {
	var st browserauth.AuthorizationState
	if err := b.stateSigner.Verify(state, &st); err != nil {
		return newAuthError(CodeInvalidState, "state rejected", err)
	}

	if binding == "" || !b.binding.Validate(binding) {
		return newAuthError(CodeInvalidState, "missing or invalid browser binding", nil)
	}
	if subtle.ConstantTimeCompare([]byte(crypto.Fingerprint(binding)), []byte(st.Binding)) != 1 {
		return newAuthError(CodeInvalidState, "state issued to a different browser", nil)
	}

	pending, err := b.store.TakePending(ctx, st.Nonce)
	if errors.Is(err, storage.ErrPendingAuthNotFound) {
		return newAuthError(CodeInvalidState, "state unknown, expired or already used", nil)
	}
	if err != nil {
		return newAuthError(CodeSessionStoreFailed, "failed to read pending authorization", err)
	}
	if pending.Binding != st.Binding {
		return newAuthError(CodeInvalidState, "pending authorization does not match state", nil)
	}
	return nil
}

// HandleCallback validates the callback and creates a session. Either a
// session is stored and returned, or nothing is stored and an *AuthError
// is returned.
func (b *SessionBridge) HandleCallback(ctx context.Context, code, state, binding string) (*storage.Session, error) {
	session, err := b.handleCallback(ctx, code, state, binding)
	if err != nil {
		callbackOutcomes.WithLabelValues(CodeOf(err)).Inc()
		log.LogWarnWithFields("auth", "Authorization callback failed", map[string]any{
			"code":  CodeOf(err),
			"error": err.Error(),
		})
		return nil, err
	}

	callbackOutcomes.WithLabelValues("ok").Inc()
	log.LogInfoWithFields("auth", "Session created", map[string]any{
		"user":      session.UserID,
		"expiresAt": session.ExpiresAt,
	})
	return session, nil
}

func (b *SessionBridge) handleCallback(ctx context.Context, code, state, binding string) (*storage.Session, error) {
	if err := b.verifyState(ctx, state, binding); err != nil {
		return nil, err
	}

	if code == "" {
		return nil, newAuthError(CodeTokenExchangeFailed, "no authorization code in callback", nil)
	}

	token, err := b.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, newAuthError(CodeTokenExchangeFailed, "code exchange failed", err)
	}

	identity, err := b.provider.UserInfo(ctx, token)
	if err != nil {
		return nil, newAuthError(CodeUserInfoFailed, "could not resolve user", err)
	}
	if identity.Subject == "" {
		return nil, newAuthError(CodeUserInfoFailed, "provider returned no user id", nil)
	}

	session, err := b.newSession(identity.Subject, token)
	if err != nil {
		return nil, newAuthError(CodeSessionStoreFailed, "failed to allocate session", err)
	}
	if err := b.store.Put(ctx, session); err != nil {
		return nil, newAuthError(CodeSessionStoreFailed, "failed to store session", err)
	}
	return session, nil
}

func (b *SessionBridge) newSession(userID string, token *oauth2.Token) (*storage.Session, error) {
	id, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, err
	}

	now := b.now()
	session := &storage.Session{
		ID:         id,
		UserID:     userID,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	applyToken(session, token)
	session.ExpiresAt = b.slidingExpiry(session, now)
	return session, nil
}

func applyToken(session *storage.Session, token *oauth2.Token) {
	session.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		session.RefreshToken = token.RefreshToken
	}
	session.TokenType = token.Type()
	session.TokenExpiresAt = token.Expiry
}

// slidingExpiry is now+idle, never past CreatedAt+maxLifetime
func (b *SessionBridge) slidingExpiry(session *storage.Session, now time.Time) time.Time {
	expiry := now.Add(b.idleTimeout)
	if limit := session.CreatedAt.Add(b.maxLifetime); expiry.After(limit) {
		return limit
	}
	return expiry
}

// needsRefresh reports whether the access token is about to expire.
// Tokens without expiry never need refreshing.
func needsRefresh(session *storage.Session, now time.Time) bool {
	if session.TokenExpiresAt.IsZero() {
		return false
	}
	return session.TokenExpiresAt.Sub(now) <= TokenRefreshThreshold
}

// Touch resolves a session id for an authenticated request. It reads the
// store every time, extends the idle expiry and refreshes the provider
// token when it is close to expiring.
func (b *SessionBridge) Touch(ctx context.Context, id string) (*storage.Session, error) {
	if id == "" {
		return nil, ErrNoSession
	}

	session, err := b.store.Get(ctx, id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	now := b.now()
	switch {
	case !needsRefresh(session, now):
	case session.RefreshToken == "":
		// The provider issued no refresh token: use the access token until it dies
		if !session.TokenExpiresAt.After(now) {
			return nil, b.dropSession(ctx, session)
		}
		log.LogDebugWithFields("auth", "Token expiring without refresh token", map[string]any{
			"user":      session.UserID,
			"expiresAt": session.TokenExpiresAt,
		})
	default:
		session, err = b.refresh(ctx, session)
		if err != nil {
			return nil, err
		}
	}

	if now.Sub(session.LastSeenAt) < touchGranularity {
		return session, nil
	}

	session.LastSeenAt = now
	session.ExpiresAt = b.slidingExpiry(session, now)
	if err := b.store.Put(ctx, session); err != nil {
		// The request can still proceed on the current expiry
		log.LogWarnWithFields("auth", "Failed to extend session", map[string]any{
			"user":  session.UserID,
			"error": err.Error(),
		})
	}
	return session, nil
}

// dropSession deletes a session whose provider token is dead and returns
// ErrNoSession for the caller.
func (b *SessionBridge) dropSession(ctx context.Context, session *storage.Session) error {
	if err := b.store.Delete(ctx, session.ID); err != nil {
		log.LogWarnWithFields("auth", "Failed to delete unrefreshable session", map[string]any{
			"error": err.Error(),
		})
	}
	return ErrNoSession
}

// refresh collapses concurrent refreshes for one session into a single
// provider call. A session whose token is already dead and cannot be
// refreshed is deleted.
func (b *SessionBridge) refresh(ctx context.Context, stale *storage.Session) (*storage.Session, error) {
	v, err, _ := b.refreshes.Do(stale.ID, func() (any, error) {
		// Another request or instance may have refreshed already
		current, err := b.store.Get(ctx, stale.ID)
		if err != nil {
			if errors.Is(err, storage.ErrSessionNotFound) {
				return nil, ErrNoSession
			}
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		now := b.now()
		if !needsRefresh(current, now) {
			return current, nil
		}

		token, err := b.provider.Refresh(ctx, current.RefreshToken)
		if err != nil {
			tokenRefreshes.WithLabelValues("error").Inc()
			log.LogErrorWithFields("auth", "Failed to refresh token", map[string]any{
				"user":  current.UserID,
				"error": err.Error(),
			})
			if current.TokenExpiresAt.After(now) {
				// Still usable for a few minutes; retry on a later request
				return current, nil
			}
			return nil, b.dropSession(ctx, current)
		}

		applyToken(current, token)
		if err := b.store.Put(ctx, current); err != nil {
			return nil, fmt.Errorf("failed to store refreshed token: %w", err)
		}

		tokenRefreshes.WithLabelValues("ok").Inc()
		log.LogInfoWithFields("auth", "Token refreshed successfully", map[string]any{
			"user":   current.UserID,
			"expiry": token.Expiry,
		})
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	// Each caller gets its own copy of the shared result
	s := *v.(*storage.Session)
	return &s, nil
}

// Denied records a callback on which the provider refused authorization
// (`?error=`). Nothing is stored; the pending record expires on its own.
func (b *SessionBridge) Denied(providerError, description string) *AuthError {
	err := ProviderDenied(providerError, description)
	callbackOutcomes.WithLabelValues(CodeProviderDenied).Inc()
	log.LogWarnWithFields("auth", "Provider denied authorization", map[string]any{
		"error":       providerError,
		"description": description,
	})
	return err
}

// Logout destroys the session. Unknown ids are not an error.
func (b *SessionBridge) Logout(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := b.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	log.LogDebugWithFields("auth", "Session deleted", nil)
	return nil
}
