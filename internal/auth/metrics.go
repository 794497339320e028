package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callbackOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_auth_callbacks_total",
		Help: "OAuth callbacks by outcome (ok or error code)",
	}, []string{"outcome"})

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_auth_token_refreshes_total",
		Help: "Provider token refresh attempts by result",
	}, []string{"result"})
)
