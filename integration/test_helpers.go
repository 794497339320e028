package integration

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/dgellow/checkin-front/internal"
	"github.com/dgellow/checkin-front/internal/config"
	"github.com/dgellow/checkin-front/internal/cookie"
	"github.com/dgellow/checkin-front/internal/popup"
	"github.com/dgellow/checkin-front/internal/testutil"
)

const testStateSecret = "integration-state-secret-0123456789abcdef"

// wsUpstream is a WebSocket backend that echoes frames and records the
// credentials of each handshake
type wsUpstream struct {
	*httptest.Server

	mu    sync.Mutex
	auths []string
}

func newWSUpstream() *wsUpstream {
	u := &wsUpstream{}
	u.Server = httptest.NewServer(websocket.Server{
		Handshake: func(_ *websocket.Config, r *http.Request) error {
			u.mu.Lock()
			u.auths = append(u.auths, r.Header.Get("Authorization"))
			u.mu.Unlock()
			return nil
		},
		Handler: func(ws *websocket.Conn) {
			_, _ = io.Copy(ws, ws)
		},
	})
	return u
}

func (u *wsUpstream) Authorizations() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.auths...)
}

// harness is one running checkin-front in front of a fake WordPress
type harness struct {
	App    *httptest.Server
	WP     *testutil.FakeWordPress
	WS     *wsUpstream
	Opener *popup.HTTPOpener
	// Browser is the opener window's client; it shares the popup's cookies
	Browser *http.Client
}

type harnessOption func(env map[string]string)

// withWebSocketOrigin points /ws somewhere else than the echo upstream
func withWebSocketOrigin(origin string) harnessOption {
	return func(env map[string]string) { env["CHECKIN_FRONT_BACKEND_WS_PLAIN"] = origin }
}

// startHarness configures the application through the environment, the
// way a container deployment does.
func startHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	wp := testutil.NewFakeWordPress()
	t.Cleanup(wp.Close)
	ws := newWSUpstream()
	t.Cleanup(ws.Close)

	app := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + app.Listener.Addr().String()

	env := map[string]string{
		"CHECKIN_FRONT_SERVER_ADDR":          app.Listener.Addr().String(),
		"CHECKIN_FRONT_SERVER_BASE_URL":      baseURL,
		"CHECKIN_FRONT_SERVER_NO_SSL":        "true",
		"CHECKIN_FRONT_BACKEND_API_PLAIN":    wp.URL,
		"CHECKIN_FRONT_BACKEND_WS_PLAIN":     ws.URL,
		"CHECKIN_FRONT_BACKEND_TIMEOUT":      "5s",
		"CHECKIN_FRONT_OAUTH_PROVIDER":       "wordpress",
		"CHECKIN_FRONT_OAUTH_PROVIDER_URL":   wp.URL,
		"CHECKIN_FRONT_OAUTH_CLIENT_ID":      wp.ClientID,
		"CHECKIN_FRONT_OAUTH_CLIENT_SECRET":  wp.ClientSecret,
		"CHECKIN_FRONT_OAUTH_STATE_SECRET":   testStateSecret,
		"CHECKIN_FRONT_SESSION_IDLE_TIMEOUT": "1h",
		"CHECKIN_FRONT_SESSION_MAX_LIFETIME": "24h",
		"CHECKIN_FRONT_STORAGE_KIND":         "memory",
	}
	for _, opt := range opts {
		opt(env)
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	front, err := internal.NewCheckinFront(context.Background(), cfg)
	require.NoError(t, err)

	app.Config.Handler = front.Handler()
	app.Start()
	t.Cleanup(app.Close)

	opener, err := popup.NewHTTPOpener(app.URL)
	require.NoError(t, err)

	return &harness{
		App:     app,
		WP:      wp,
		WS:      ws,
		Opener:  opener,
		Browser: opener.Client(),
	}
}

// flow returns a popup flow with test-friendly timing
func (h *harness) flow(opts ...popup.FlowOption) *popup.Flow {
	base := []popup.FlowOption{popup.WithInterval(5 * time.Millisecond), popup.WithTimeout(10 * time.Second)}
	return popup.NewFlow(h.Opener, append(base, opts...)...)
}

// login runs the whole popup flow and fails the test if it does not succeed
func (h *harness) login(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, h.flow().BeginAuth(ctx, "/oauth/begin"))
	require.NotEmpty(t, h.sessionCookie(), "login must leave a session cookie")
}

func (h *harness) appURL() *url.URL {
	u, _ := url.Parse(h.App.URL)
	return u
}

func (h *harness) sessionCookie() string {
	return h.cookie(cookie.SessionCookie)
}

// cookie returns the browser's value for name on the app origin
func (h *harness) cookie(name string) string {
	for _, c := range h.Opener.Jar().Cookies(h.appURL()) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := h.Browser.Get(h.App.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) post(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := h.Browser.Post(h.App.URL+path, "application/json", nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// dialWS opens /ws through the app, with the browser's cookies when
// withCookies is set
func (h *harness) dialWS(withCookies bool) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(h.App.URL, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, h.App.URL)
	if err != nil {
		return nil, err
	}
	var pairs []string
	if withCookies {
		for _, c := range h.Opener.Jar().Cookies(h.appURL()) {
			pairs = append(pairs, c.String())
		}
	}
	cfg.Header = make(http.Header)
	if len(pairs) > 0 {
		cfg.Header.Set("Cookie", strings.Join(pairs, "; "))
	}
	return websocket.DialConfig(cfg)
}

// closedOrigin returns an origin nothing listens on
func closedOrigin(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr
}
