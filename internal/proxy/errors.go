package proxy

import (
	"errors"
	"fmt"
)

// ProxyError kinds
const (
	KindNoRoute             = "no_route"
	KindUpgradeNotRouted    = "upgrade_not_routed"
	KindUpstreamUnreachable = "upstream_unreachable"
	KindUpstreamTimeout     = "upstream_timeout"
)

var (
	// ErrNoRoute is returned when no route matches a plain request
	ErrNoRoute = errors.New("no route matches request")
	// ErrUpgradeNotRouted is returned when an upgrade request hits a path
	// without an upgrade route
	ErrUpgradeNotRouted = errors.New("upgrade request not routed")
)

// ProxyError describes a routing or forwarding failure
type ProxyError struct {
	Kind  string
	Route string
	Err   error
}

func (e *ProxyError) Error() string {
	if e.Route != "" {
		return fmt.Sprintf("proxy: %s (route %s): %v", e.Kind, e.Route, e.Err)
	}
	return fmt.Sprintf("proxy: %s: %v", e.Kind, e.Err)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}
