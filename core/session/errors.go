package session

import (
	"errors"

	"github.com/kilianp07/cellsim/core/curve"
	"github.com/kilianp07/cellsim/core/ecm"
)

var (
	// ErrNotConfigured is returned by Step and Reset before Configure succeeded.
	ErrNotConfigured = errors.New("session not configured")
	// ErrSessionClosed is returned by every operation after Close.
	ErrSessionClosed = errors.New("session closed")
)

// Kind classifies an error for callers that cannot use errors.Is, such as the
// HTTP API and the sentinel binding.
type Kind string

const (
	KindNone               Kind = ""
	KindInvalidCurve       Kind = "invalid_curve"
	KindConfiguration      Kind = "configuration_error"
	KindIntegrationFailure Kind = "integration_failure"
	KindNotConfigured      Kind = "not_configured"
	KindSessionClosed      Kind = "session_closed"
	KindNotFound           Kind = "not_found"
	KindUnknown            Kind = "unknown"
)

// KindOf maps err to its Kind. A nil error maps to KindNone.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrSessionClosed):
		return KindSessionClosed
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, ecm.ErrConfiguration), errors.Is(err, curve.ErrNoCurve):
		return KindConfiguration
	case errors.Is(err, curve.ErrInvalidCurve), errors.Is(err, curve.ErrUnknownPreset), errors.Is(err, curve.ErrUnknownModel):
		return KindInvalidCurve
	case errors.Is(err, ecm.ErrIntegrationFailure):
		return KindIntegrationFailure
	default:
		return KindUnknown
	}
}
