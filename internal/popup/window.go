package popup

import (
	"context"
	"errors"
	"net/url"
)

var (
	// ErrCrossOrigin is returned by Popup.Location while the popup shows a
	// page from another origin. It means "not back yet", never failure.
	ErrCrossOrigin = errors.New("popup location is cross-origin")
	// ErrPopupClosed is returned once the popup window is gone
	ErrPopupClosed = errors.New("popup closed")
	// ErrPopupBlocked is returned by Opener.Open when no window could be opened
	ErrPopupBlocked = errors.New("popup blocked")
)

// Rect is a window position and size in screen coordinates
type Rect struct {
	X, Y          int
	Width, Height int
}

// Center places a w x h window centered on the opener's bounds
func Center(opener Rect, w, h int) Rect {
	return Rect{
		X:      opener.X + (opener.Width-w)/2,
		Y:      opener.Y + (opener.Height-h)/2,
		Width:  w,
		Height: h,
	}
}

// Popup is a child browsing context owned by one Flow attempt
type Popup interface {
	// Location returns the current URL, ErrCrossOrigin while it cannot be
	// read, or ErrPopupClosed once the window is gone.
	Location() (*url.URL, error)
	Closed() bool
	Close() error
}

// Opener is the browsing context that opens popups
type Opener interface {
	Bounds() Rect
	Open(ctx context.Context, target string, frame Rect) (Popup, error)
}
