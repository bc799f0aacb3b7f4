package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/kilianp07/cellsim/core/ecm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	id, h := r.Create()
	require.NotEmpty(t, id)
	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Same(t, h, got)
	assert.Equal(t, id, h.Snapshot().ID)

	_, err = r.CreateWithID(id)
	assert.ErrorIs(t, err, ErrExists)

	h2, err := r.GetOrCreate("cell-b")
	require.NoError(t, err)
	h3, err := r.GetOrCreate("cell-b")
	require.NoError(t, err)
	assert.Same(t, h2, h3)
	assert.Equal(t, 2, r.Len())
	assert.Contains(t, r.IDs(), "cell-b")

	require.NoError(t, r.Delete(id))
	_, err = r.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Delete(id), ErrNotFound)
	assert.Equal(t, StatusClosed, h.Snapshot().Status)

	r.Close()
	assert.Zero(t, r.Len())
}

func TestHandle_SerialisesSteps(t *testing.T) {
	r := NewRegistry(nil)
	_, h := r.Create()
	require.NoError(t, h.Do(func(s *Session) error {
		if err := s.LoadCurve(threePoint); err != nil {
			return err
		}
		_, err := s.Configure(scenarioConfig())
		return err
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Do(func(s *Session) error {
				_, err := s.Step(1, 1)
				return err
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, h.Snapshot().Steps)
}

func TestRunProfile(t *testing.T) {
	s := configured(t)
	res, err := Run(context.Background(), s, ConstantProfile(5, 60, 3))
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Greater(t, res[0].VoltageV, res[2].VoltageV)

	s2 := configured(t)
	res, err = Run(context.Background(), s2, []ProfileStep{{5, 60}, {5, -1}, {5, 60}})
	assert.ErrorIs(t, err, ecm.ErrIntegrationFailure)
	assert.Len(t, res, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err = Run(ctx, configured(t), ConstantProfile(5, 60, 3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res)

	assert.Len(t, UniformProfile([]float64{1, 2, 3}, 10), 3)
}

func TestParseProfileCSV(t *testing.T) {
	p, err := ParseProfileCSV(strings.NewReader("current_a,dt_s\n5,60\n# rest\n0, 30\n"))
	require.NoError(t, err)
	assert.Equal(t, []ProfileStep{{5, 60}, {0, 30}}, p)

	_, err = ParseProfileCSV(strings.NewReader("5,60\nx,1\n"))
	assert.Error(t, err)
}
