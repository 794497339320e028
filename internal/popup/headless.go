package popup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/dgellow/checkin-front/internal/log"
)

// HTTPOpener is a headless browser: popups follow real HTTP redirects one
// hop per Location call and share one cookie jar with the opener. It lets
// the popup flow run end to end without a browser.
type HTTPOpener struct {
	origin *url.URL
	jar    http.CookieJar
	client *http.Client
	bounds Rect
}

// NewHTTPOpener creates an opener whose own origin is appOrigin
func NewHTTPOpener(appOrigin string) (*HTTPOpener, error) {
	origin, err := url.Parse(appOrigin)
	if err != nil {
		return nil, fmt.Errorf("invalid app origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid app origin %q", appOrigin)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	return &HTTPOpener{
		origin: origin,
		jar:    jar,
		client: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
			// Each redirect is a visible navigation step
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		bounds: Rect{Width: 1280, Height: 800},
	}, nil
}

// Client returns an HTTP client for the opener window itself. It shares the
// popup's cookies, like a real browser.
func (o *HTTPOpener) Client() *http.Client {
	return &http.Client{Jar: o.jar, Timeout: o.client.Timeout}
}

// Jar returns the shared cookie jar
func (o *HTTPOpener) Jar() http.CookieJar {
	return o.jar
}

// SetTransport routes all traffic through rt, for TLS test servers
func (o *HTTPOpener) SetTransport(rt http.RoundTripper) {
	o.client.Transport = rt
}

func (o *HTTPOpener) Bounds() Rect {
	return o.bounds
}

func (o *HTTPOpener) Open(ctx context.Context, target string, frame Rect) (Popup, error) {
	u, err := o.origin.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPopupBlocked, err)
	}
	return &httpPopup{
		opener:  o,
		ctx:     ctx,
		frame:   frame,
		current: u,
		next:    u,
	}, nil
}

func (o *HTTPOpener) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, o.origin.Scheme) && strings.EqualFold(u.Host, o.origin.Host)
}

// httpPopup is a popup whose navigation is a chain of HTTP requests
type httpPopup struct {
	opener *HTTPOpener
	ctx    context.Context
	frame  Rect

	mu      sync.Mutex
	current *url.URL
	next    *url.URL
	closed  bool
	hops    int
}

// Location advances one navigation step, then reports where the popup is.
func (p *httpPopup) Location() (*url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPopupClosed
	}
	if p.next != nil {
		if err := p.step(); err != nil {
			return nil, err
		}
	}

	if !p.opener.sameOrigin(p.current) {
		return nil, ErrCrossOrigin
	}
	u := *p.current
	return &u, nil
}

// step loads p.next. A redirect becomes the next step; any other response
// is a rendered page and ends navigation.
func (p *httpPopup) step() error {
	req, err := http.NewRequestWithContext(p.ctx, http.MethodGet, p.next.String(), nil)
	if err != nil {
		return err
	}
	resp, err := p.opener.client.Do(req)
	if err != nil {
		return fmt.Errorf("navigating popup: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	p.current = p.next
	p.next = nil
	p.hops++

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if loc == "" {
			return fmt.Errorf("redirect without location from %s", p.current.Redacted())
		}
		target, err := p.current.Parse(loc)
		if err != nil {
			return fmt.Errorf("bad redirect location %q: %w", loc, err)
		}
		// Browsers carry the fragment over a redirect without one
		if target.Fragment == "" && p.current.Fragment != "" {
			target.Fragment = p.current.Fragment
		}
		p.current = target
		p.next = target
	}

	log.LogTraceWithFields("popup", "Popup navigated", map[string]any{
		"hop":    p.hops,
		"status": resp.StatusCode,
	})
	return nil
}

func (p *httpPopup) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *httpPopup) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
