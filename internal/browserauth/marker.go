package browserauth

import (
	"net/url"
	"strings"
)

// MarkerKey is the fragment key the popup poller looks for on the
// completion page.
const MarkerKey = "checkin-auth"

const (
	markerOK    = "ok"
	markerError = "error"
)

// CompletePath returns the completion page path under redirectPath
func CompletePath(redirectPath string) string {
	return strings.TrimRight(redirectPath, "/") + "/complete"
}

// SuccessFragment marks a finished login
func SuccessFragment() string {
	return MarkerKey + "=" + markerOK
}

// FailureFragment marks a failed login with a machine-readable reason
func FailureFragment(reason string) string {
	v := url.Values{}
	v.Set(MarkerKey, markerError)
	v.Set("reason", reason)
	return v.Encode()
}

// CallbackResult is the outcome observed on a same-origin popup URL.
// Raw marks the provider's own redirect, which the server still has to
// answer before the login is decided.
type CallbackResult struct {
	Success bool
	Raw     bool
	Code    string
	Error   string
}

// IsFailure reports whether the result carries an error
func (r CallbackResult) IsFailure() bool {
	return r.Error != ""
}

// ParseCallbackURL inspects a URL the popup reached on the app origin.
// The completion marker lives in the fragment; a raw provider redirect
// carries code or error in the query. ok is false when neither is present,
// meaning the popup has not finished yet.
func ParseCallbackURL(u *url.URL) (result CallbackResult, ok bool) {
	if u == nil {
		return CallbackResult{}, false
	}

	if frag, err := url.ParseQuery(u.Fragment); err == nil && frag.Has(MarkerKey) {
		switch frag.Get(MarkerKey) {
		case markerOK:
			return CallbackResult{Success: true}, true
		case markerError:
			reason := frag.Get("reason")
			if reason == "" {
				reason = "unknown_error"
			}
			return CallbackResult{Error: reason}, true
		}
	}

	q := u.Query()
	if e := q.Get("error"); e != "" {
		return CallbackResult{Raw: true, Error: e}, true
	}
	if code := q.Get("code"); code != "" {
		return CallbackResult{Raw: true, Code: code}, true
	}
	return CallbackResult{}, false
}
