package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/dgellow/checkin-front/internal/config"
)

// Route is one entry of the routing table. Either Handler serves the
// request locally or it is forwarded to Target.
type Route struct {
	Name    string
	Pattern string
	Target  *url.URL
	// Upgrade routes only match upgrade requests, and upgrade requests only
	// match Upgrade routes.
	Upgrade        bool
	RequireSession bool
	Handler        http.Handler
}

// Matches reports whether the route accepts r
func (rt *Route) Matches(r *http.Request) bool {
	return rt.Upgrade == IsUpgrade(r) && MatchPath(rt.Pattern, r.URL.Path)
}

func (rt *Route) validate() error {
	if rt.Name == "" {
		return fmt.Errorf("route without name")
	}
	if rt.Pattern == "" {
		return fmt.Errorf("route %s: empty pattern", rt.Name)
	}
	if rt.Handler == nil && rt.Target == nil {
		return fmt.Errorf("route %s: needs a handler or a target", rt.Name)
	}
	if rt.Target != nil && rt.Target.Scheme != "http" && rt.Target.Scheme != "https" {
		return fmt.Errorf("route %s: unsupported target scheme %q", rt.Name, rt.Target.Scheme)
	}
	return nil
}

// IsUpgrade reports whether r asks for a protocol upgrade such as WebSocket
func IsUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") != "" &&
		httpguts.HeaderValuesContainsToken(r.Header["Connection"], "Upgrade")
}

// parseOrigin accepts http(s) and ws(s) origins. WebSocket schemes are
// mapped to their HTTP equivalents since the handshake is HTTP.
func parseOrigin(field, origin string) (*url.URL, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("%s: unsupported scheme %q", field, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%s: missing host", field)
	}
	return u, nil
}

// DefaultRoutes builds the routing table: the OAuth redirect path is served
// by callback, /ws goes to the WebSocket origin, the REST namespaces go to
// the API origin with a session, and everything else goes to the root
// origin. Origins follow the deployment's TLS mode.
func DefaultRoutes(cfg config.Config, callback http.Handler) ([]*Route, error) {
	api, err := parseOrigin("api", cfg.APIOrigin())
	if err != nil {
		return nil, err
	}
	ws, err := parseOrigin("websocket", cfg.WebSocketOrigin())
	if err != nil {
		return nil, err
	}
	root, err := parseOrigin("root", cfg.RootOrigin())
	if err != nil {
		return nil, err
	}

	redirectPath := cfg.OAuth.RedirectPath
	if redirectPath == "" {
		redirectPath = config.DefaultRedirectPath
	}

	return []*Route{
		{
			Name:    "oauth_redirect",
			Pattern: strings.TrimRight(redirectPath, "/") + "/**",
			Handler: callback,
		},
		{
			Name:           "websocket",
			Pattern:        "/ws",
			Target:         ws,
			Upgrade:        true,
			RequireSession: true,
		},
		{
			Name:           "api",
			Pattern:        "/api/**",
			Target:         api,
			RequireSession: true,
		},
		{
			Name:           "wp-json",
			Pattern:        "/wp-json/**",
			Target:         api,
			RequireSession: true,
		},
		{
			Name:    "root",
			Pattern: "/**",
			Target:  root,
		},
	}, nil
}
