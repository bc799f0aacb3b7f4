package curve

import "errors"

var (
	// ErrInvalidCurve reports malformed or insufficient OCV/SoC samples.
	ErrInvalidCurve = errors.New("invalid ocv curve")
	// ErrNoCurve is returned when an operation needs a curve and none is loaded.
	ErrNoCurve = errors.New("no ocv curve loaded")
	// ErrUnknownPreset is returned for preset names that are not registered.
	ErrUnknownPreset = errors.New("unknown curve preset")
	// ErrUnknownModel is returned for model types other than ModelTypes.
	ErrUnknownModel = errors.New("unknown model type")
)
