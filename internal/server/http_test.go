package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/checkin-front/internal/storage"
	"github.com/dgellow/checkin-front/internal/testutil"
)

func TestHealthEndpoint(t *testing.T) {
	down := &testutil.MockStorage{}
	down.On("Ping", mock.Anything).Return(errors.New("dial tcp: connection refused"))

	tests := []struct {
		name        string
		store       Pinger
		wantStatus  int
		wantStatusV string
	}{
		{"store reachable", storage.NewMemoryStorage(), http.StatusOK, "ok"},
		{"store down", down, http.StatusServiceUnavailable, "unavailable"},
		{"no store", nil, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewHealthHandler(tt.store).ServeHTTP(rr, httptest.NewRequest("GET", HealthPath, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var response map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, tt.wantStatusV, response["status"])
		})
	}
}

func TestHTTPServer_ServeAndStop(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewHTTPServer(NewHealthHandler(nil), l.Addr().String())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + HealthPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-errc:
		assert.NoError(t, err, "a graceful stop is not an error")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
