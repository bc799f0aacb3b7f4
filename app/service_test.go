package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cellsim/config"
	"github.com/kilianp07/cellsim/core/factory"
	"github.com/kilianp07/cellsim/core/session"
)

func TestNewServiceConfiguresSessions(t *testing.T) {
	cfg := config.Default()
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, svc.Close()) }()

	_, h := svc.Registry.Create()
	assert.Equal(t, session.StatusConfigured, h.Snapshot().Status)

	var res session.StepResult
	require.NoError(t, h.Do(func(s *session.Session) error {
		var err error
		res, err = s.Step(5, 60)
		return err
	}))
	assert.Less(t, res.SoCPercent, 100.0)
}

func TestServiceHandler(t *testing.T) {
	cfg := config.Default()
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"id":"a"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"configured"`)

	rr = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewServiceErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "statsd"}}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Cell.Curve = factory.ModuleConfig{Type: "preset", Conf: map[string]any{"name": "nope"}}
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Logging.Level = "loud"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()
	cancel()
	assert.NoError(t, <-errCh)
}

func TestNewSession(t *testing.T) {
	cfg := config.Default()
	cfg.Cell.Curve = factory.ModuleConfig{Type: "table", Conf: map[string]any{"points": [][]float64{{0, 3.0}, {1, 4.2}}}}
	s, err := NewSession(context.Background(), cfg, session.WithID("cli"))
	require.NoError(t, err)
	assert.Equal(t, "cli", s.ID())
	soc, err := s.InitialSoC()
	require.NoError(t, err)
	assert.Equal(t, 1.0, soc)

	results, err := session.Run(context.Background(), s, session.ConstantProfile(5, 60, 3))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.InDelta(t, 95, results[2].SoCPercent, 1e-3)
}
