package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cellsim/core/session"
	"github.com/kilianp07/cellsim/internal/eventbus"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu      sync.Mutex
	handler paho.MessageHandler
	filter  string
	msgs    []published
	err     error
}

func (f *fakeBroker) Subscribe(topic string, _ byte, h paho.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = topic
	f.handler = h
	return nil
}

func (f *fakeBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, retained: retained, payload: payload})
	return f.err
}

func (f *fakeBroker) send(topic, payload string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(nil, mockMessage{topic: topic, p: []byte(payload)})
}

func (f *fakeBroker) on(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type recordMonitor struct {
	mu   sync.Mutex
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) Recover()            {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestParseCommandTopic(t *testing.T) {
	id, cmd, ok := ParseCommandTopic("cellsim", CommandTopic("cellsim", "cell-1", CmdStep))
	require.True(t, ok)
	assert.Equal(t, "cell-1", id)
	assert.Equal(t, CmdStep, cmd)

	for _, topic := range []string{"other/cell-1/set/step", "cellsim/cell-1/state", "cellsim//set/step", "cellsim/a/set/step/x"} {
		_, _, ok := ParseCommandTopic("cellsim", topic)
		assert.False(t, ok, topic)
	}
}

func startController(t *testing.T, cfg Config, bus *eventbus.TypedBus[session.Event], opts ...ControllerOption) (*fakeBroker, *Controller) {
	t.Helper()
	fb := &fakeBroker{}
	var reg *session.Registry
	if bus != nil {
		reg = session.NewRegistry(func(id string) *session.Session {
			return session.New(session.WithID(id), session.WithObserver(bus))
		})
	} else {
		reg = session.NewRegistry(nil)
	}
	c := NewController(fb, reg, cfg, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done, err := c.Start(ctx, bus)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		<-done
	})
	base := cfg.BaseTopic
	if base == "" {
		base = DefaultBaseTopic
	}
	assert.Equal(t, CommandFilter(base), fb.filter)
	return fb, c
}

func TestControllerCommandFlow(t *testing.T) {
	fb, _ := startController(t, Config{}, nil)

	fb.send("cellsim/cell-1/set/curve", `{"type":"preset","conf":{"name":"chen2020"}}`)
	fb.send("cellsim/cell-1/set/config", `{"num_rc_pairs":2}`)
	fb.send("cellsim/cell-1/set/step", `{"current_a":5,"dt_s":60}`)

	require.Empty(t, fb.on(ErrorTopic("cellsim", "cell-1")))
	results := fb.on(ResultTopic("cellsim", "cell-1"))
	require.Len(t, results, 3)

	var res session.StepResult
	require.NoError(t, json.Unmarshal(results[2].payload, &res))
	assert.Greater(t, res.VoltageV, 2.5)
	assert.Less(t, res.VoltageV, 4.3)
	assert.Less(t, res.SoCPercent, 100.0)
	assert.InDelta(t, 60, res.Sample.Time, 1e-3)

	fb.send("cellsim/cell-1/set/reset", ``)
	require.Len(t, fb.on(ResultTopic("cellsim", "cell-1")), 4)
}

func TestControllerErrors(t *testing.T) {
	fb, c := startController(t, Config{BaseTopic: "lab"}, nil)

	fb.send("lab/cell-2/set/step", `{"current_a":1,"dt_s":1}`)
	fb.send("lab/cell-2/set/curve", `{"type":"preset","conf":{"name":"unobtainium"}}`)
	fb.send("lab/cell-2/set/config", `{"r0":-1}`)
	fb.send("lab/cell-2/set/explode", `{}`)
	fb.send("lab/cell-2/set/step", `not json`)

	errs := fb.on(ErrorTopic("lab", "cell-2"))
	require.Len(t, errs, 5)
	kinds := make([]session.Kind, 0, len(errs))
	for _, m := range errs {
		var r ErrorReply
		require.NoError(t, json.Unmarshal(m.payload, &r))
		assert.NotEmpty(t, r.Error)
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []session.Kind{
		session.KindNotFound,
		session.KindInvalidCurve,
		session.KindConfiguration,
		session.KindUnknown,
		session.KindUnknown,
	}, kinds)

	_, err := c.Handle("cell-2", CmdReset, nil)
	assert.ErrorIs(t, err, session.ErrNotConfigured)
}

func TestControllerOnlyCreatesOnCurveOrConfig(t *testing.T) {
	reg := session.NewRegistry(nil)
	c := NewController(&fakeBroker{}, reg, Config{})

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("junk-%d", i)
		_, err := c.Handle(id, "nope", nil)
		assert.Error(t, err)
		_, err = c.Handle(id, CmdStep, []byte(`{"current_a":1,"dt_s":1}`))
		assert.ErrorIs(t, err, session.ErrNotFound)
		_, err = c.Handle(id, CmdReset, nil)
		assert.ErrorIs(t, err, session.ErrNotFound)
		_, err = c.Handle(id, CmdCurve, []byte(`not json`))
		assert.Error(t, err)
		_, err = c.Handle(id, CmdConfig, []byte(`[`))
		assert.Error(t, err)
	}
	assert.Zero(t, reg.Len())

	_, err := c.Handle("cell-9", CmdConfig, []byte(`{}`))
	assert.Equal(t, session.KindConfiguration, session.KindOf(err))
	assert.Equal(t, []string{"cell-9"}, reg.IDs())
}

func TestControllerReplyQoS(t *testing.T) {
	bus := eventbus.NewTyped[session.Event]()
	defer bus.Close()
	fb, _ := startController(t, Config{QoS: map[string]byte{"command": 1, "state": 0, "reply": 2}}, bus)

	fb.send("cellsim/cell-4/set/curve", `{"type":"table","conf":{"points":[[0,3.0],[1,4.2]]}}`)
	fb.send("cellsim/cell-4/set/step", `{"current_a":1,"dt_s":1}`)

	results := fb.on(ResultTopic("cellsim", "cell-4"))
	require.Len(t, results, 1)
	assert.Equal(t, byte(2), results[0].qos)
	errs := fb.on(ErrorTopic("cellsim", "cell-4"))
	require.Len(t, errs, 1)
	assert.Equal(t, byte(2), errs[0].qos)
}

func TestControllerPublishesState(t *testing.T) {
	bus := eventbus.NewTyped[session.Event]()
	defer bus.Close()
	fb, c := startController(t, Config{}, bus)

	_, err := c.Handle("cell-3", CmdCurve, []byte(`{"type":"preset","conf":{"name":"chen2020"}}`))
	require.NoError(t, err)
	_, err = c.Handle("cell-3", CmdConfig, []byte(`{}`))
	require.NoError(t, err)
	_, err = c.Handle("cell-3", CmdStep, []byte(`{"current_a":5,"dt_s":1}`))
	require.NoError(t, err)

	topic := StateTopic("cellsim", "cell-3")
	require.Eventually(t, func() bool { return len(fb.on(topic)) == 1 }, time.Second, 5*time.Millisecond)
	msg := fb.on(topic)[0]
	assert.True(t, msg.retained)
	var st StateMessage
	require.NoError(t, json.Unmarshal(msg.payload, &st))
	assert.Equal(t, "cell-3", st.Session)
	assert.InDelta(t, 1, st.Sample.Time, 1e-3)
}

func TestControllerThrottlesState(t *testing.T) {
	fb := &fakeBroker{}
	c := NewController(fb, session.NewRegistry(nil), Config{PublishIntervalMS: 1000})
	now := time.Now()
	c.publishState(session.StepEvent{ID: "a", Time: now})
	c.publishState(session.StepEvent{ID: "a", Time: now.Add(10 * time.Millisecond)})
	c.publishState(session.StepEvent{ID: "a", Time: now.Add(20 * time.Millisecond), CutoffReached: true})
	c.publishState(session.StepEvent{ID: "a", Time: now.Add(2 * time.Second)})
	assert.Len(t, fb.on(StateTopic("cellsim", "a")), 3)
}

func TestControllerReportsPublishFailure(t *testing.T) {
	mon := &recordMonitor{}
	fb := &fakeBroker{err: errors.New("broker down")}
	c := NewController(fb, session.NewRegistry(nil), Config{}, WithControllerMonitor(mon))
	c.publishState(session.StepEvent{ID: "veh", Time: time.Now()})
	require.Error(t, mon.err)
	assert.Equal(t, "mqtt", mon.tags["module"])
	assert.Equal(t, "veh", mon.tags["session"])
}
