//go:build !no_containers

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/cellsim/core/session"
	"github.com/kilianp07/cellsim/internal/eventbus"
)

func waitForMQTTReady(broker string, timeout time.Duration) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("readiness")
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		lastErr = token.Error()
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for broker")
	}
	return lastErr
}

func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())
	if err := waitForMQTTReady(broker, 5*time.Second); err != nil {
		t.Skipf("mosquitto not ready at %s: %v", broker, err)
	}
	return broker
}

func TestControllerWithMosquitto(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := startMosquitto(ctx, t)

	cfg := Config{Broker: broker, ClientID: "cellsim-test", QoS: map[string]byte{"command": 1, "state": 1}}
	cli, err := NewClient(cfg)
	require.NoError(t, err)
	defer cli.Disconnect()

	bus := eventbus.NewTyped[session.Event]()
	defer bus.Close()
	reg := session.NewRegistry(func(id string) *session.Session {
		return session.New(session.WithID(id), session.WithObserver(bus))
	})
	ctrl := NewController(cli, reg, cfg)
	done, err := ctrl.Start(ctx, bus)
	require.NoError(t, err)
	defer func() { cancel(); <-done }()

	remote := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("cellsim-test-cmd"))
	token := remote.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer remote.Disconnect(100)

	states := make(chan StateMessage, 4)
	token = remote.Subscribe(StateTopic(DefaultBaseTopic, "cell-1"), 1, func(_ paho.Client, m paho.Message) {
		var st StateMessage
		if json.Unmarshal(m.Payload(), &st) == nil {
			states <- st
		}
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	send := func(cmd, payload string) {
		tok := remote.Publish(CommandTopic(DefaultBaseTopic, "cell-1", cmd), 1, false, payload)
		require.True(t, tok.WaitTimeout(5*time.Second))
		require.NoError(t, tok.Error())
	}
	send(CmdCurve, `{"type":"preset","conf":{"name":"chen2020"}}`)
	require.Eventually(t, func() bool {
		h, err := reg.Get("cell-1")
		return err == nil && h.Snapshot().Status == session.StatusCurveLoaded
	}, 5*time.Second, 20*time.Millisecond)
	send(CmdConfig, `{}`)
	require.Eventually(t, func() bool {
		h, _ := reg.Get("cell-1")
		return h.Snapshot().Status == session.StatusConfigured
	}, 5*time.Second, 20*time.Millisecond)
	send(CmdStep, `{"current_a":5,"dt_s":60}`)

	select {
	case st := <-states:
		assert.Equal(t, "cell-1", st.Session)
		assert.Less(t, st.SoCPercent, 100.0)
	case <-time.After(5 * time.Second):
		t.Fatal("no state published")
	}
}
