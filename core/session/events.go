package session

import (
	"time"

	"github.com/kilianp07/cellsim/core/ecm"
)

// Event is published by a Session to its Observer. The concrete types are
// StepEvent, AdjustmentEvent, FailureEvent and ClosedEvent.
type Event interface {
	SessionID() string
}

// Observer receives session events. *eventbus.TypedBus[Event] satisfies it.
type Observer interface {
	Publish(Event)
}

// StepEvent is published after every successful step.
type StepEvent struct {
	ID            string
	Sample        ecm.Sample
	SoCPercent    float64
	CutoffReached bool
	Duration      time.Duration
	Time          time.Time
}

// AdjustmentEvent is published when the SoC was clamped back into [0,1]
// before integrating.
type AdjustmentEvent struct {
	ID         string
	Adjustment ecm.Adjustment
	Time       time.Time
}

// FailureEvent is published when a step fails.
type FailureEvent struct {
	ID      string
	Kind    Kind
	Err     error
	Current float64
	Dt      float64
	Time    time.Time
}

// ClosedEvent is published once when a session is closed.
type ClosedEvent struct {
	ID   string
	Time time.Time
}

func (e StepEvent) SessionID() string       { return e.ID }
func (e AdjustmentEvent) SessionID() string { return e.ID }
func (e FailureEvent) SessionID() string    { return e.ID }
func (e ClosedEvent) SessionID() string     { return e.ID }

type nopObserver struct{}

func (nopObserver) Publish(Event) {}
