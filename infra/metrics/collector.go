package metrics

import (
	"context"

	corelogger "github.com/kilianp07/cellsim/core/logger"
	coremetrics "github.com/kilianp07/cellsim/core/metrics"
	coremon "github.com/kilianp07/cellsim/core/monitoring"
	"github.com/kilianp07/cellsim/core/session"
	"github.com/kilianp07/cellsim/internal/eventbus"
)

// CollectorOption configures StartEventCollector.
type CollectorOption func(*collector)

// WithMonitor forwards step failures to an error monitor.
func WithMonitor(m coremon.Monitor) CollectorOption {
	return func(c *collector) {
		if m != nil {
			c.mon = m
		}
	}
}

// WithLogger reports sink errors.
func WithLogger(l corelogger.Logger) CollectorOption {
	return func(c *collector) {
		if l != nil {
			c.log = l
		}
	}
}

type collector struct {
	sink coremetrics.MetricsSink
	mon  coremon.Monitor
	log  corelogger.Logger
}

// StartEventCollector subscribes to the session bus and records every event
// in sink. It stops when the context is canceled or the bus is closed; the
// returned channel is closed once the collector has exited.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[session.Event], sink coremetrics.MetricsSink, opts ...CollectorOption) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	c := &collector{sink: sink, mon: coremon.NopMonitor{}, log: corelogger.NopLogger{}}
	for _, o := range opts {
		o(c)
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				c.handle(ev)
			}
		}
	}()
	return done
}

func (c *collector) handle(ev session.Event) {
	var err error
	switch e := ev.(type) {
	case session.StepEvent:
		err = c.sink.RecordStep(coremetrics.StepRecord{
			SessionID:     e.ID,
			SimTime:       e.Sample.Time,
			CurrentA:      e.Sample.Current,
			VoltageV:      e.Sample.Voltage,
			OCVV:          e.Sample.OCV,
			SoCPercent:    e.SoCPercent,
			VR1:           e.Sample.VR1,
			VR2:           e.Sample.VR2,
			CutoffReached: e.CutoffReached,
			Duration:      e.Duration,
			Time:          e.Time,
		})
	case session.FailureEvent:
		c.mon.CaptureException(e.Err, coremon.SessionTags("collector", e.ID, coremon.TagKind, string(e.Kind)))
		if r, ok := c.sink.(coremetrics.FailureRecorder); ok {
			msg := ""
			if e.Err != nil {
				msg = e.Err.Error()
			}
			err = r.RecordFailure(coremetrics.FailureRecord{
				SessionID: e.ID,
				Kind:      string(e.Kind),
				Error:     msg,
				CurrentA:  e.Current,
				DtS:       e.Dt,
				Time:      e.Time,
			})
		}
	case session.AdjustmentEvent:
		if r, ok := c.sink.(coremetrics.AdjustmentRecorder); ok {
			err = r.RecordAdjustment(coremetrics.AdjustmentRecord{
				SessionID: e.ID,
				From:      e.Adjustment.From,
				To:        e.Adjustment.To,
				Time:      e.Time,
			})
		}
	case session.ClosedEvent:
		if r, ok := c.sink.(coremetrics.SessionRemover); ok {
			err = r.RemoveSession(e.ID)
		}
	}
	if err != nil {
		c.log.Warnf("metrics sink: %v", err)
	}
}
