package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPath(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/ws", "/ws", true},
		{"/ws", "/ws/", true},
		{"/ws", "/wss", false},
		{"/ws", "/ws/chat", false},

		{"/api/*", "/api/orders", true},
		{"/api/*", "/api/orders/7", false},
		{"/api/*", "/api", false},
		{"/api/*/notes", "/api/orders/notes", true},
		{"/api/*/notes", "/api/orders/items", false},

		{"/api/**", "/api", true},
		{"/api/**", "/api/", true},
		{"/api/**", "/api/orders/7/notes", true},
		{"/api/**", "/apiary", false},
		{"/api/**", "/other/api", false},

		{"/oauth_redirect/**", "/oauth_redirect/", true},
		{"/oauth_redirect/**", "/oauth_redirect/complete", true},
		{"/oauth_redirect/**", "/oauth_redirection", false},

		{"/*", "/health", true},
		{"/*", "/", false},
		{"/*", "/a/b", false},

		{"/**", "/", true},
		{"/**", "/anything/nested/deep", true},

		{"api/orders/", "/api/orders", true},
		{"", "/", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPath(tt.pattern, tt.path))
		})
	}
}
