package popup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/checkin-front/internal/browserauth"
	"github.com/dgellow/checkin-front/internal/log"
)

const (
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = 2 * time.Minute
	DefaultWidth    = 600
	DefaultHeight   = 700
)

// Flow runs one popup login at a time: it opens the provider page in a
// popup and polls the popup until it lands on a completion marker.
type Flow struct {
	opener   Opener
	interval time.Duration
	timeout  time.Duration
	width    int
	height   int

	mu     sync.Mutex
	active bool
}

// FlowOption configures a Flow
type FlowOption func(*Flow)

// WithInterval sets the poll interval
func WithInterval(d time.Duration) FlowOption {
	return func(f *Flow) { f.interval = d }
}

// WithTimeout sets the maximum time an attempt may poll
func WithTimeout(d time.Duration) FlowOption {
	return func(f *Flow) { f.timeout = d }
}

// WithSize sets the popup dimensions
func WithSize(width, height int) FlowOption {
	return func(f *Flow) {
		f.width = width
		f.height = height
	}
}

// NewFlow creates a flow opening popups through opener
func NewFlow(opener Opener, opts ...FlowOption) *Flow {
	f := &Flow{
		opener:   opener,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		width:    DefaultWidth,
		height:   DefaultHeight,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Active reports whether an attempt is pending
func (f *Flow) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Flow) acquire() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return false
	}
	f.active = true
	return true
}

func (f *Flow) release() {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
}

// Start opens the popup and polls it in the background. onDone receives
// nil on success or the rejection; it is never called once ctx is
// cancelled. Errors returned by Start itself mean no attempt was started.
func (f *Flow) Start(ctx context.Context, providerURL string, onDone func(error)) error {
	_, err := f.start(ctx, providerURL, onDone)
	return err
}

// start is Start returning a channel closed once the attempt has fully
// ended: the popup is closed and a new attempt may begin.
func (f *Flow) start(ctx context.Context, providerURL string, onDone func(error)) (<-chan struct{}, error) {
	if !f.acquire() {
		return nil, ErrAlreadyInProgress
	}

	frame := Center(f.opener.Bounds(), f.width, f.height)
	p, err := f.opener.Open(ctx, providerURL, frame)
	if err != nil {
		f.release()
		log.LogWarnWithFields("popup", "Failed to open popup", map[string]any{
			"error": err.Error(),
		})
		return nil, &AuthError{Message: MessageFailed, Err: err}
	}

	log.LogDebugWithFields("popup", "Popup opened", map[string]any{
		"width":  frame.Width,
		"height": frame.Height,
	})

	finished := make(chan struct{})
	go func() {
		notify, err := f.poll(ctx, p)
		f.release()
		close(finished)
		if notify && onDone != nil {
			onDone(err)
		}
	}()
	return finished, nil
}

// BeginAuth runs an attempt and blocks until it resolves. On cancellation
// it returns ctx.Err() once the popup is closed.
func (f *Flow) BeginAuth(ctx context.Context, providerURL string) error {
	done := make(chan error, 1)
	finished, err := f.start(ctx, providerURL, func(err error) { done <- err })
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		<-finished
		return ctx.Err()
	}
}

// poll drives the timer loop. The popup is closed on every exit path.
// notify is false when the attempt was cancelled.
func (f *Flow) poll(ctx context.Context, p Popup) (notify bool, err error) {
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			log.LogDebugWithFields("popup", "Closing popup failed", map[string]any{
				"error": closeErr.Error(),
			})
		}
	}()

	deadline := time.NewTimer(f.timeout)
	defer deadline.Stop()
	tick := time.NewTimer(f.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			log.LogDebugWithFields("popup", "Authorization cancelled", nil)
			return false, ctx.Err()
		case <-deadline.C:
			log.LogWarnWithFields("popup", "Authorization timed out", map[string]any{
				"timeout": f.timeout.String(),
			})
			return ctx.Err() == nil, ErrTimedOut
		case <-tick.C:
		}

		done, err := check(p)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if done {
			return true, err
		}
		// Next tick is armed only after this one finished
		tick.Reset(f.interval)
	}
}

// check performs one poll. done is false while the outcome is unknown.
func check(p Popup) (done bool, err error) {
	if p.Closed() {
		return true, ErrAuthorizationFailed
	}

	u, err := p.Location()
	switch {
	case errors.Is(err, ErrCrossOrigin):
		return false, nil
	case errors.Is(err, ErrPopupClosed):
		return true, ErrAuthorizationFailed
	case err != nil:
		return true, fmt.Errorf("reading popup location: %w", err)
	}

	result, ok := browserauth.ParseCallbackURL(u)
	switch {
	case !ok:
		return false, nil
	case result.Raw:
		// Provider redirect, code or error alike; the server has not answered it yet
		return false, nil
	case result.Success:
		log.LogDebugWithFields("popup", "Authorization completed", nil)
		return true, nil
	case result.IsFailure():
		log.LogWarnWithFields("popup", "Authorization rejected", map[string]any{
			"reason": result.Error,
		})
		return true, &AuthError{Message: MessageFailed, Reason: result.Error}
	default:
		return false, nil
	}
}
