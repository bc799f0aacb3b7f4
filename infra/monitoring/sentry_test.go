package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/kilianp07/cellsim/config"
	coremon "github.com/kilianp07/cellsim/core/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *captureTransport) Flush(time.Duration) bool      { return true }
func (t *captureTransport) Configure(sentry.ClientOptions) {}
func (t *captureTransport) Close()                         {}
func (t *captureTransport) SendEvent(e *sentry.Event) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

func TestNewSentryMonitor_NoDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestSentryMonitor_CaptureWithTags(t *testing.T) {
	tr := &captureTransport{}
	m, err := newSentryMonitor(sentry.ClientOptions{Dsn: "https://key@example.com/1", Transport: tr})
	require.NoError(t, err)

	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("integration failure: dt must be positive"), map[string]string{
		"session": "cell-1",
		"kind":    "integration_failure",
	})
	m.Flush(time.Second)

	require.Len(t, tr.events, 1)
	assert.Equal(t, "cell-1", tr.events[0].Tags["session"])
	assert.Equal(t, "integration_failure", tr.events[0].Tags["kind"])
}

func TestSentryMonitor_RecoverRepanics(t *testing.T) {
	tr := &captureTransport{}
	m, err := newSentryMonitor(sentry.ClientOptions{Dsn: "https://key@example.com/1", Transport: tr})
	require.NoError(t, err)

	assert.Panics(t, func() {
		defer m.Recover()
		panic("boom")
	})
	assert.Len(t, tr.events, 1)
}
