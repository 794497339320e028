package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/dgellow/checkin-front/internal/config"
	jsonwriter "github.com/dgellow/checkin-front/internal/json"
	"github.com/dgellow/checkin-front/internal/storage"
	"github.com/dgellow/checkin-front/internal/testutil"
)

// fakeSessions resolves "good" to a session and "broken" to a store error
var fakeSessions = SessionResolverFunc(func(_ context.Context, id string) (*storage.Session, error) {
	switch id {
	case "good":
		return &storage.Session{ID: id, UserID: "42", AccessToken: "wp-access-1", TokenType: "Bearer"}, nil
	case "broken":
		return nil, errors.New("redis: connection refused")
	default:
		return nil, fmt.Errorf("lookup: %w", storage.ErrSessionNotFound)
	}
})

func plainConfig(origin string) config.Config {
	return config.Config{
		Server:  config.ServerConfig{NoSSL: true},
		Backend: config.BackendConfig{API: config.OriginPair{Plain: origin, TLS: "https://unused.example.com"}},
		OAuth:   config.OAuthConfig{RedirectPath: "/oauth_redirect/"},
	}
}

func newTestRouter(t *testing.T, origin string, opts ...Option) *Router {
	t.Helper()
	callback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handled-By", "callback")
		w.WriteHeader(http.StatusFound)
	})
	routes, err := DefaultRoutes(plainConfig(origin), callback)
	require.NoError(t, err)

	router, err := NewRouter(routes, fakeSessions, append([]Option{WithLoginURI("/oauth/begin")}, opts...)...)
	require.NoError(t, err)
	return router
}

func upgradeRequest(path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("Connection", "keep-alive, Upgrade")
	r.Header.Set("Upgrade", "websocket")
	return r
}

func TestRouter_Route(t *testing.T) {
	router := newTestRouter(t, "http://wp.internal:8080")

	tests := []struct {
		name     string
		req      *http.Request
		wantName string
		wantErr  error
	}{
		{"callback", httptest.NewRequest(http.MethodGet, "/oauth_redirect/?code=x&state=y", nil), "oauth_redirect", nil},
		{"completion page", httptest.NewRequest(http.MethodGet, "/oauth_redirect/complete", nil), "oauth_redirect", nil},
		{"api", httptest.NewRequest(http.MethodGet, "/api/orders", nil), "api", nil},
		{"wp-json", httptest.NewRequest(http.MethodPost, "/wp-json/wc/v3/orders", nil), "wp-json", nil},
		{"websocket upgrade", upgradeRequest("/ws"), "websocket", nil},
		{"plain request to /ws falls through", httptest.NewRequest(http.MethodGet, "/ws", nil), "root", nil},
		{"catch-all", httptest.NewRequest(http.MethodGet, "/checkin/app.js", nil), "root", nil},
		{"upgrade on api path", upgradeRequest("/api/orders"), "", ErrUpgradeNotRouted},
		{"upgrade on unknown path", upgradeRequest("/elsewhere"), "", ErrUpgradeNotRouted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := router.Route(tt.req)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				var proxyErr *ProxyError
				require.True(t, errors.As(err, &proxyErr))
				assert.Equal(t, KindUpgradeNotRouted, proxyErr.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, route.Name)
		})
	}
}

func TestRouter_NoRoute(t *testing.T) {
	target, _ := url.Parse("http://wp.internal")
	router, err := NewRouter([]*Route{{Name: "api", Pattern: "/api/**", Target: target}}, nil)
	require.NoError(t, err)

	_, err = router.Route(httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.ErrorIs(t, err, ErrNoRoute)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, upgradeRequest("/other"))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp jsonwriter.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, KindUpgradeNotRouted, resp.Error)
}

func TestNewRouter_Validation(t *testing.T) {
	target, _ := url.Parse("http://wp.internal")
	ftp, _ := url.Parse("ftp://wp.internal")

	tests := []struct {
		name     string
		routes   []*Route
		sessions SessionResolver
	}{
		{"missing name", []*Route{{Pattern: "/**", Target: target}}, nil},
		{"missing pattern", []*Route{{Name: "a", Target: target}}, nil},
		{"no handler or target", []*Route{{Name: "a", Pattern: "/**"}}, nil},
		{"bad scheme", []*Route{{Name: "a", Pattern: "/**", Target: ftp}}, nil},
		{"duplicate", []*Route{{Name: "a", Pattern: "/x", Target: target}, {Name: "a", Pattern: "/y", Target: target}}, nil},
		{"session without resolver", []*Route{{Name: "a", Pattern: "/**", Target: target, RequireSession: true}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouter(tt.routes, tt.sessions)
			assert.Error(t, err)
		})
	}
}

func TestRouter_LocalHandler(t *testing.T) {
	router := newTestRouter(t, "http://wp.internal:8080")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth_redirect/?code=x", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "callback", w.Header().Get("X-Handled-By"))
}

func TestRouter_SessionRequired(t *testing.T) {
	backend := testutil.NewFakeWordPress()
	defer backend.Close()

	router := newTestRouter(t, backend.URL)

	tests := []struct {
		name       string
		cookie     string
		wantStatus int
		wantError  string
	}{
		{"no cookie", "", http.StatusUnauthorized, "session_required"},
		{"unknown session", "checkin_session=stale", http.StatusUnauthorized, "session_required"},
		{"store outage", "checkin_session=broken", http.StatusServiceUnavailable, "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if tt.cookie != "" {
				req.Header.Set("Cookie", tt.cookie)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp jsonwriter.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp.Error)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Session login_uri="/oauth/begin"`, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRouter_InjectsBearerAndStripsCookies(t *testing.T) {
	backend := testutil.NewFakeWordPress()
	defer backend.Close()

	router := newTestRouter(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/wp-json/wc/v3/orders?status=processing", nil)
	req.Host = "checkin.example.com"
	req.Header.Set("Cookie", "checkin_session=good; checkin_auth_binding=b; wp_lang=en")
	req.Header.Set("Authorization", "Bearer forged-by-browser")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var echo testutil.EchoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &echo))
	assert.Equal(t, "/wp-json/wc/v3/orders", echo.Path)
	assert.Equal(t, "Bearer wp-access-1", echo.Authorization)
	assert.Equal(t, "wp_lang=en", echo.Cookie)
	assert.Equal(t, "checkin.example.com", echo.ForwardedHost)
}

func TestRouter_CatchAllNeedsNoSession(t *testing.T) {
	backend := testutil.NewFakeWordPress()
	defer backend.Close()

	router := newTestRouter(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/checkin/index.html", nil)
	req.Header.Set("Cookie", "checkin_session=good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var echo testutil.EchoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &echo))
	assert.Equal(t, "/checkin/index.html", echo.Path)
	assert.Empty(t, echo.Authorization)
	assert.Empty(t, echo.Cookie)
}

func TestRouter_UpstreamUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	router := newTestRouter(t, deadURL)

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Cookie", "checkin_session=good")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		var resp jsonwriter.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "bad_gateway", resp.Error)
	}
}

func TestRouter_UpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	router := newTestRouter(t, slow.URL, WithTimeout(50*time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Cookie", "checkin_session=good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	var resp jsonwriter.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "gateway_timeout", resp.Error)
}

func dialWS(frontURL, cookie string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(frontURL, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, frontURL)
	if err != nil {
		return nil, err
	}
	cfg.Header = make(http.Header)
	if cookie != "" {
		cfg.Header.Set("Cookie", cookie)
	}
	return websocket.DialConfig(cfg)
}

func TestRouter_WebSocket(t *testing.T) {
	upstream := httptest.NewServer(websocket.Server{
		Handshake: func(_ *websocket.Config, r *http.Request) error {
			if r.Header.Get("Authorization") != "Bearer wp-access-1" {
				return fmt.Errorf("unexpected credentials %q", r.Header.Get("Authorization"))
			}
			if strings.Contains(r.Header.Get("Cookie"), "checkin_session") {
				return fmt.Errorf("session cookie leaked upstream")
			}
			return nil
		},
		Handler: func(ws *websocket.Conn) {
			_, _ = io.Copy(ws, ws)
		},
	})
	defer upstream.Close()

	router := newTestRouter(t, upstream.URL)
	front := httptest.NewServer(router)
	defer front.Close()

	t.Run("authenticated connection is proxied", func(t *testing.T) {
		conn, err := dialWS(front.URL, "checkin_session=good")
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, websocket.Message.Send(conn, "checked in: ticket 1138"))

		var got string
		require.NoError(t, websocket.Message.Receive(conn, &got))
		assert.Equal(t, "checked in: ticket 1138", got)
	})

	t.Run("no session is refused", func(t *testing.T) {
		conn, err := dialWS(front.URL, "")
		if conn != nil {
			_ = conn.Close()
		}
		assert.Error(t, err)
	})
}

func TestDefaultRoutes(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.Config
		wantAPI    string
		wantWS     string
		wantRoot   string
		wantErr    bool
		wantPrefix string
	}{
		{
			name: "tls origins",
			cfg: config.Config{
				Backend: config.BackendConfig{
					API:       config.OriginPair{Plain: "http://wp:80", TLS: "https://wp.example.com"},
					WebSocket: config.OriginPair{Plain: "ws://ws:80", TLS: "wss://ws.example.com"},
				},
			},
			wantAPI:    "https://wp.example.com",
			wantWS:     "https://ws.example.com",
			wantRoot:   "https://wp.example.com",
			wantPrefix: "/oauth_redirect/**",
		},
		{
			name: "plain origins",
			cfg: config.Config{
				Server: config.ServerConfig{NoSSL: true},
				Backend: config.BackendConfig{
					API:  config.OriginPair{Plain: "http://wp:80", TLS: "https://wp.example.com"},
					Root: config.OriginPair{Plain: "http://static:80"},
				},
				OAuth: config.OAuthConfig{RedirectPath: "/auth/return/"},
			},
			wantAPI:    "http://wp:80",
			wantWS:     "http://wp:80",
			wantRoot:   "http://static:80",
			wantPrefix: "/auth/return/**",
		},
		{
			name: "bad scheme",
			cfg: config.Config{
				Backend: config.BackendConfig{API: config.OriginPair{TLS: "ftp://wp.example.com"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes, err := DefaultRoutes(tt.cfg, http.NotFoundHandler())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			byName := make(map[string]*Route)
			for _, r := range routes {
				byName[r.Name] = r
			}
			assert.Equal(t, tt.wantPrefix, byName["oauth_redirect"].Pattern)
			assert.Equal(t, tt.wantAPI, byName["api"].Target.String())
			assert.Equal(t, tt.wantAPI, byName["wp-json"].Target.String())
			assert.Equal(t, tt.wantWS, byName["websocket"].Target.String())
			assert.Equal(t, tt.wantRoot, byName["root"].Target.String())
			assert.True(t, byName["websocket"].Upgrade)
			assert.True(t, byName["api"].RequireSession)
			assert.False(t, byName["root"].RequireSession)
			assert.Equal(t, "root", routes[len(routes)-1].Name, "catch-all must be last")
		})
	}
}
