package integration

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/checkin-front/internal/browserauth"
	"github.com/dgellow/checkin-front/internal/cookie"
	"github.com/dgellow/checkin-front/internal/popup"
	"github.com/dgellow/checkin-front/internal/server"
)

// closingOpener hands out popups the "user" closes after a few polls
type closingOpener struct {
	*popup.HTTPOpener
	after int32
}

func (o *closingOpener) Open(ctx context.Context, target string, frame popup.Rect) (popup.Popup, error) {
	p, err := o.HTTPOpener.Open(ctx, target, frame)
	if err != nil {
		return nil, err
	}
	return &closingPopup{Popup: p, after: o.after}, nil
}

type closingPopup struct {
	popup.Popup
	after int32
	reads atomic.Int32
}

func (p *closingPopup) Location() (*url.URL, error) {
	if p.reads.Add(1) >= p.after {
		_ = p.Popup.Close()
	}
	return p.Popup.Location()
}

func TestPopupLogin_ThroughProviderLoginPages(t *testing.T) {
	h := startHarness(t)
	h.WP.Hops = 10

	h.login(t)

	resp := h.get(t, server.SessionPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decodeJSON[server.SessionInfo](t, resp)
	assert.Equal(t, h.WP.UserID, info.UserID)
	assert.True(t, info.ExpiresAt.After(time.Now()))

	assert.Equal(t, int32(1), h.WP.TokenRequests.Load(), "one code exchange per login")
}

func TestPopupLogin_UserClosesPopup(t *testing.T) {
	h := startHarness(t)
	h.WP.Hops = 10

	flow := popup.NewFlow(&closingOpener{HTTPOpener: h.Opener, after: 3},
		popup.WithInterval(5*time.Millisecond), popup.WithTimeout(10*time.Second))

	err := flow.BeginAuth(context.Background(), "/oauth/begin")

	require.Error(t, err)
	assert.ErrorIs(t, err, popup.ErrAuthorizationFailed)
	assert.Equal(t, "Authorization failed", err.Error())
	assert.Empty(t, h.sessionCookie())
	assert.Equal(t, int32(0), h.WP.TokenRequests.Load())
}

func TestPopupLogin_ProviderDenies(t *testing.T) {
	h := startHarness(t)
	h.WP.Deny.Store(true)

	err := h.flow().BeginAuth(context.Background(), "/oauth/begin")

	assert.ErrorIs(t, err, popup.ErrAuthorizationFailed)
	assert.Equal(t, "access_denied", popup.ReasonOf(err))
	assert.Empty(t, h.sessionCookie())
	assert.Empty(t, h.cookie(cookie.BindingCookie), "the server handled the denial and cleared the binding")

	resp := h.get(t, server.MetricsPath)
	metrics, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `checkin_auth_callbacks_total{outcome="provider_denied"}`)
}

func TestPopupLogin_TokenExchangeFails(t *testing.T) {
	h := startHarness(t)
	h.WP.FailToken.Store(true)

	err := h.flow().BeginAuth(context.Background(), "/oauth/begin")

	assert.ErrorIs(t, err, popup.ErrAuthorizationFailed)
	assert.Equal(t, "token_exchange_failed", popup.ReasonOf(err))
	assert.Empty(t, h.sessionCookie())
}

func TestPopupLogin_TimesOutWhileOnProvider(t *testing.T) {
	h := startHarness(t)

	// The provider never redirects back: the popup sits on a cross-origin page
	flow := h.flow(popup.WithTimeout(150 * time.Millisecond))
	err := flow.BeginAuth(context.Background(), h.WP.URL+"/wp-admin/")

	assert.ErrorIs(t, err, popup.ErrTimedOut)
	assert.Equal(t, "Authorization timed out", err.Error())
	assert.False(t, flow.Active())
}

func TestCallback_ForgedStateIsRejected(t *testing.T) {
	h := startHarness(t)

	resp := h.get(t, "/oauth_redirect/?code=stolen&state=forged")

	require.Equal(t, http.StatusOK, resp.StatusCode, "lands on the completion page")
	result, ok := browserauth.ParseCallbackURL(resp.Request.URL)
	require.True(t, ok)
	assert.Equal(t, "invalid_state", result.Error)
	assert.Empty(t, h.sessionCookie())
	assert.Equal(t, int32(0), h.WP.TokenRequests.Load(), "no exchange on a bad state")
}

func TestSession_LogoutEndsAccess(t *testing.T) {
	h := startHarness(t)
	h.login(t)

	require.Equal(t, http.StatusOK, h.get(t, "/api/orders").StatusCode)

	resp := h.post(t, server.LogoutPath)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, h.sessionCookie(), "logout clears the cookie")

	assert.Equal(t, http.StatusUnauthorized, h.get(t, server.SessionPath).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, h.get(t, "/api/orders").StatusCode)
}
