package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/cellsim/core/curve"
	"github.com/kilianp07/cellsim/core/ecm"
	"github.com/kilianp07/cellsim/core/factory"
	corelogger "github.com/kilianp07/cellsim/core/logger"
	coremon "github.com/kilianp07/cellsim/core/monitoring"
	"github.com/kilianp07/cellsim/core/session"
	"github.com/kilianp07/cellsim/internal/eventbus"
)

// Broker is the part of Client used by the Controller.
type Broker interface {
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// StepCommand is the payload of a step command.
type StepCommand struct {
	CurrentA float64 `json:"current_a"`
	DtS      float64 `json:"dt_s"`
}

// ErrorReply is published on the error topic when a command fails.
type ErrorReply struct {
	Command string       `json:"command"`
	Kind    session.Kind `json:"kind"`
	Error   string       `json:"error"`
}

// StateMessage is the retained state of a session after a step.
type StateMessage struct {
	Session       string     `json:"session"`
	Sample        ecm.Sample `json:"sample"`
	SoCPercent    float64    `json:"soc_percent"`
	CutoffReached bool       `json:"cutoff_reached"`
	Timestamp     int64      `json:"timestamp"`
}

// Controller exposes the sessions of a registry over MQTT: commands arrive on
// <base>/<id>/set/<cmd>, replies go to <base>/<id>/result or /error and step
// events are published on <base>/<id>/state.
type Controller struct {
	broker   Broker
	reg      *session.Registry
	base     string
	cmdQoS   byte
	stateQoS byte
	replyQoS byte
	interval time.Duration
	log      corelogger.Logger
	mon      coremon.Monitor

	mu      sync.Mutex
	ctx     context.Context
	lastPub map[string]time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger.
func WithControllerLogger(l corelogger.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithControllerMonitor reports publish failures.
func WithControllerMonitor(m coremon.Monitor) ControllerOption {
	return func(c *Controller) {
		if m != nil {
			c.mon = m
		}
	}
}

// NewController binds reg to broker using the topic layout of cfg.
func NewController(broker Broker, reg *session.Registry, cfg Config, opts ...ControllerOption) *Controller {
	base := cfg.BaseTopic
	if base == "" {
		base = DefaultBaseTopic
	}
	c := &Controller{
		broker:   broker,
		reg:      reg,
		base:     base,
		cmdQoS:   cfg.qos("command"),
		stateQoS: cfg.qos("state"),
		replyQoS: cfg.qos("reply"),
		interval: time.Duration(cfg.PublishIntervalMS) * time.Millisecond,
		log:      corelogger.NopLogger{},
		mon:      coremon.NopMonitor{},
		ctx:      context.Background(),
		lastPub:  make(map[string]time.Time),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start subscribes to the command topics and, when bus is not nil, publishes
// step events until ctx is canceled. The returned channel is closed once the
// state publisher has exited.
func (c *Controller) Start(ctx context.Context, bus *eventbus.TypedBus[session.Event]) (<-chan struct{}, error) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	if err := c.broker.Subscribe(CommandFilter(c.base), c.cmdQoS, c.onCommand); err != nil {
		return nil, fmt.Errorf("subscribe commands: %w", err)
	}
	done := make(chan struct{})
	if bus == nil {
		close(done)
		return done, nil
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
				switch e := ev.(type) {
				case session.StepEvent:
					c.publishState(e)
				case session.ClosedEvent:
					c.mu.Lock()
					delete(c.lastPub, e.ID)
					c.mu.Unlock()
				}
			}
		}
	}()
	return done, nil
}

func (c *Controller) onCommand(_ paho.Client, msg paho.Message) {
	id, cmd, ok := ParseCommandTopic(c.base, msg.Topic())
	if !ok {
		c.log.Warnf("ignoring message on %s", msg.Topic())
		return
	}
	reply, err := c.Handle(id, cmd, msg.Payload())
	if err != nil {
		c.log.Warnf("command %s on session %s: %v", cmd, id, err)
		c.publish(ErrorTopic(c.base, id), id, c.replyQoS, false, ErrorReply{Command: cmd, Kind: session.KindOf(err), Error: err.Error()})
		return
	}
	c.publish(ResultTopic(c.base, id), id, c.replyQoS, false, reply)
}

// Handle runs a command against the session id and returns the reply
// payload. The payload is decoded before the registry is touched; only curve
// and config create a missing session, step and reset report
// session.ErrNotFound.
func (c *Controller) Handle(id, cmd string, payload []byte) (any, error) {
	var (
		create bool
		run    func(*session.Session) (any, error)
	)
	switch cmd {
	case CmdStep:
		var sc StepCommand
		if err := json.Unmarshal(payload, &sc); err != nil {
			return nil, fmt.Errorf("decode step: %w", err)
		}
		run = func(s *session.Session) (any, error) { return s.Step(sc.CurrentA, sc.DtS) }
	case CmdReset:
		run = func(s *session.Session) (any, error) { return nil, s.Reset() }
	case CmdCurve:
		var mc factory.ModuleConfig
		if err := json.Unmarshal(payload, &mc); err != nil {
			return nil, fmt.Errorf("%w: decode curve source: %w", curve.ErrInvalidCurve, err)
		}
		src, err := curve.NewSource(mc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", curve.ErrInvalidCurve, err)
		}
		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()
		create = true
		run = func(s *session.Session) (any, error) { return nil, s.LoadCurveFrom(ctx, src) }
	case CmdConfig:
		cfg := ecm.DefaultConfig()
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, fmt.Errorf("%w: decode config: %w", ecm.ErrConfiguration, err)
		}
		create = true
		run = func(s *session.Session) (any, error) {
			_, err := s.Configure(cfg)
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}

	var (
		h   *session.Handle
		err error
	)
	if create {
		h, err = c.reg.GetOrCreate(id)
	} else {
		h, err = c.reg.Get(id)
	}
	if err != nil {
		return nil, err
	}

	var reply any
	err = h.Do(func(s *session.Session) error {
		r, err := run(s)
		if err != nil {
			return err
		}
		if r == nil {
			r = s.Snapshot()
		}
		reply = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Controller) publishState(e session.StepEvent) {
	if c.interval > 0 {
		c.mu.Lock()
		last, seen := c.lastPub[e.ID]
		if seen && e.Time.Sub(last) < c.interval && !e.CutoffReached {
			c.mu.Unlock()
			return
		}
		c.lastPub[e.ID] = e.Time
		c.mu.Unlock()
	}
	c.publish(StateTopic(c.base, e.ID), e.ID, c.stateQoS, true, StateMessage{
		Session:       e.ID,
		Sample:        e.Sample,
		SoCPercent:    e.SoCPercent,
		CutoffReached: e.CutoffReached,
		Timestamp:     e.Time.UnixMilli(),
	})
}

func (c *Controller) publish(topic, id string, qos byte, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.log.Errorf("encode %s: %v", topic, err)
		return
	}
	if err := c.broker.Publish(topic, qos, retained, payload); err != nil {
		c.log.Errorf("publish %s: %v", topic, err)
		c.mon.CaptureException(err, coremon.SessionTags("mqtt", id, coremon.TagTopic, topic))
	}
}
