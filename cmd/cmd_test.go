package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPresets(t *testing.T) {
	out, err := execute(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "chen2020")
	assert.Contains(t, out, "sources:")
}

func TestCurve(t *testing.T) {
	out, err := execute(t, "curve", "--chemistry", "chen2020", "-n", "3")
	require.NoError(t, err)
	var points [][2]float64
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	require.Len(t, points, 3)
	assert.Equal(t, 50.0, points[1][0])
}

func TestRunConstant(t *testing.T) {
	out, err := execute(t, "run", "--profile", "", "--current", "5", "--dt", "60", "--steps", "3", "--format", "csv", "--chemistry", "chen2020")
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewBufferString(out)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "t_s", rows[0][0])
}

func TestRunProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.csv")
	require.NoError(t, os.WriteFile(path, []byte("current_a,dt_s\n5,30\n-2,30\n"), 0o644))
	out, err := execute(t, "run", "--profile", path, "--format", "json", "--chemistry", "chen2020", "--method", "backward-euler")
	require.NoError(t, err)
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Len(t, results, 2)
}

func TestRunErrors(t *testing.T) {
	_, err := execute(t, "run", "--profile", "", "--format", "xml")
	assert.Error(t, err)
	_, err = execute(t, "run", "--profile", "", "--format", "table", "--steps", "0")
	assert.Error(t, err)
	_, err = execute(t, "run", "--profile", "", "--steps", "1", "--method", "rk4")
	assert.Error(t, err)
	_, err = execute(t, "run", "--profile", filepath.Join(t.TempDir(), "missing.csv"), "--method", "zoh")
	assert.Error(t, err)
}
