package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/config"
)

func TestNewServer_RequiresDependencies(t *testing.T) {
	logger := discardLogger()

	_, err := NewServer(nil, logger)
	require.Error(t, err)

	_, err = NewServer(&config.Config{}, nil)
	require.Error(t, err)

	s, err := NewServer(&config.Config{}, logger)
	require.NoError(t, err)
	assert.NotNil(t, s.Router())
	assert.NotNil(t, s.Validator)
}

func TestMountRoutes_RegistrarsAndHealth(t *testing.T) {
	s := newTestServer(t)
	s.RouteRegistrars = []RouteRegistrar{
		func(r chi.Router) {
			r.Get("/success", func(w http.ResponseWriter, req *http.Request) {
				PlainText(w, http.StatusOK, "ok")
			})
		},
	}
	s.MountRoutes()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/success", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

type stubProbe struct {
	name string
	err  error
}

func (p stubProbe) Name() string                  { return p.name }
func (p stubProbe) Check(_ context.Context) error { return p.err }

func TestHandleHealth_ProbeFailure(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		stubProbe{name: "database"},
		stubProbe{name: "gateway", err: errors.New("connection refused")},
	}

	rec := httptest.NewRecorder()
	s.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unhealthy"`)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{stubProbe{name: "database"}}

	rec := httptest.NewRecorder()
	s.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}
