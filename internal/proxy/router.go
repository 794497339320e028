package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/dgellow/checkin-front/internal/cookie"
	jsonwriter "github.com/dgellow/checkin-front/internal/json"
	"github.com/dgellow/checkin-front/internal/log"
	"github.com/dgellow/checkin-front/internal/storage"
)

// SessionResolver looks up and extends the session behind a cookie value.
// A missing or expired session must be reported with an error wrapping
// storage.ErrSessionNotFound; any other error is treated as a store outage.
type SessionResolver interface {
	Touch(ctx context.Context, id string) (*storage.Session, error)
}

// SessionResolverFunc adapts a function to SessionResolver
type SessionResolverFunc func(ctx context.Context, id string) (*storage.Session, error)

func (f SessionResolverFunc) Touch(ctx context.Context, id string) (*storage.Session, error) {
	return f(ctx, id)
}

// Router dispatches requests over an ordered route table. The first
// matching route wins.
type Router struct {
	routes    []*Route
	proxies   map[string]*httputil.ReverseProxy
	sessions  SessionResolver
	loginURI  string
	transport http.RoundTripper
	timeout   time.Duration
}

// Option configures a Router
type Option func(*Router)

// WithTransport sets the upstream transport, mainly for tests
func WithTransport(rt http.RoundTripper) Option {
	return func(r *Router) { r.transport = rt }
}

// WithTimeout bounds the wait for upstream response headers
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithLoginURI is advertised in the challenge of session-required answers
func WithLoginURI(uri string) Option {
	return func(r *Router) { r.loginURI = uri }
}

// NewRouter validates routes and prepares one reverse proxy per forwarding route
func NewRouter(routes []*Route, sessions SessionResolver, opts ...Option) (*Router, error) {
	r := &Router{
		routes:   routes,
		proxies:  make(map[string]*httputil.ReverseProxy),
		sessions: sessions,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = r.timeout
		r.transport = t
	}

	seen := make(map[string]bool)
	for _, route := range routes {
		if err := route.validate(); err != nil {
			return nil, err
		}
		if seen[route.Name] {
			return nil, fmt.Errorf("duplicate route name %q", route.Name)
		}
		seen[route.Name] = true

		if route.RequireSession && sessions == nil {
			return nil, fmt.Errorf("route %s requires a session but no resolver is configured", route.Name)
		}
		if route.Handler == nil {
			r.proxies[route.Name] = r.newReverseProxy(route)
		}
	}
	return r, nil
}

// Routes returns the routing table in match order
func (rt *Router) Routes() []*Route {
	return rt.routes
}

// Route selects the route for r. Errors are *ProxyError wrapping
// ErrNoRoute or ErrUpgradeNotRouted.
func (rt *Router) Route(r *http.Request) (*Route, error) {
	for _, route := range rt.routes {
		if route.Matches(r) {
			return route, nil
		}
	}
	if IsUpgrade(r) {
		return nil, &ProxyError{Kind: KindUpgradeNotRouted, Err: ErrUpgradeNotRouted}
	}
	return nil, &ProxyError{Kind: KindNoRoute, Err: ErrNoRoute}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	route, err := rt.Route(r)
	if err != nil {
		log.LogWarnWithFields("proxy", "Request not routed", map[string]any{
			"method":  r.Method,
			"path":    r.URL.Path,
			"upgrade": IsUpgrade(r),
		})
		if errors.Is(err, ErrUpgradeNotRouted) {
			jsonwriter.WriteError(w, http.StatusBadGateway, KindUpgradeNotRouted, "no upgrade route for this path")
			observeRequest("none", http.StatusBadGateway, start)
			return
		}
		jsonwriter.WriteNotFound(w, "no route for this path")
		observeRequest("none", http.StatusNotFound, start)
		return
	}

	rec := &statusRecorder{ResponseWriter: w}
	defer func() { observeRequest(route.Name, rec.Status(), start) }()

	if route.Handler != nil {
		route.Handler.ServeHTTP(rec, r)
		return
	}

	out := r.Clone(r.Context())
	cookie.StripFromRequest(out, cookie.SessionCookie, cookie.BindingCookie)
	out.Header.Del("Authorization")

	if route.RequireSession {
		if !rt.authorize(rec, r, out) {
			return
		}
	}

	log.LogTraceWithFields("proxy", "Forwarding request", map[string]any{
		"route":  route.Name,
		"method": r.Method,
		"path":   r.URL.Path,
	})
	rt.proxies[route.Name].ServeHTTP(rec, out)
}

// authorize resolves the session cookie of r and injects the provider token
// into out. It writes the error response and returns false on failure.
func (rt *Router) authorize(w http.ResponseWriter, r, out *http.Request) bool {
	id, err := cookie.GetSession(r)
	if err != nil || id == "" {
		jsonwriter.WriteSessionRequired(w, "Sign in to continue", rt.loginURI)
		return false
	}

	session, err := rt.sessions.Touch(r.Context(), id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		jsonwriter.WriteSessionRequired(w, "Session expired", rt.loginURI)
		return false
	}
	if err != nil {
		log.LogErrorWithFields("proxy", "Session lookup failed", map[string]any{
			"error": err.Error(),
			"path":  r.URL.Path,
		})
		jsonwriter.WriteServiceUnavailable(w, "Session store unavailable")
		return false
	}

	out.Header.Set("Authorization", "Bearer "+session.AccessToken)
	return true
}

func (rt *Router) newReverseProxy(route *Route) *httputil.ReverseProxy {
	target := route.Target
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: rt.transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			kind := classifyUpstreamError(err)
			upstreamErrors.WithLabelValues(route.Name, kind).Inc()
			log.LogErrorWithFields("proxy", "Upstream request failed", map[string]any{
				"route":  route.Name,
				"target": target.Redacted(),
				"path":   r.URL.Path,
				"error":  (&ProxyError{Kind: kind, Route: route.Name, Err: err}).Error(),
			})

			if r.Context().Err() != nil {
				// Client went away; nobody reads the response
				return
			}
			if kind == KindUpstreamTimeout {
				jsonwriter.WriteGatewayTimeout(w, "Upstream did not answer in time")
				return
			}
			jsonwriter.WriteBadGateway(w, "Upstream unreachable")
		},
	}
}

func classifyUpstreamError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindUpstreamTimeout
	}
	return KindUpstreamUnreachable
}
