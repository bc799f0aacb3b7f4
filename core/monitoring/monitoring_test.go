package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNopMonitor(t *testing.T) {
	var m Monitor = NopMonitor{}
	assert.NotPanics(t, func() {
		defer m.Recover()
		m.CaptureException(errors.New("integration failure"), map[string]string{"session": "a"})
		m.Flush(time.Millisecond)
	})
}

func TestSessionTags(t *testing.T) {
	tags := SessionTags("mqtt", "cell-1", TagTopic, "cellsim/cell-1/state", TagKind, "", "dangling")
	assert.Equal(t, map[string]string{
		TagModule:  "mqtt",
		TagSession: "cell-1",
		TagTopic:   "cellsim/cell-1/state",
	}, tags)

	assert.Empty(t, SessionTags("", ""))
}
