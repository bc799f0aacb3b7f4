package ecm

import "errors"

var (
	// ErrConfiguration reports invalid ECM parameters or a missing curve.
	ErrConfiguration = errors.New("ecm configuration error")
	// ErrIntegrationFailure reports a step that could not be integrated:
	// invalid input, an unsolvable system or a non-finite result.
	ErrIntegrationFailure = errors.New("integration failure")
)
