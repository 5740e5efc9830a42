package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerStderrOnly(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, closeLog, err := newLogger(buf, "", false)
	require.NoError(t, err)
	defer closeLog()

	logger.Debug("hidden")
	logger.Info("pipeline_start", "run_id", "r-1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=pipeline_start")
	assert.Contains(t, buf.String(), "run_id=r-1")
}

func TestNewLoggerFansOutToFile(t *testing.T) {
	buf := &bytes.Buffer{}
	path := filepath.Join(t.TempDir(), "triage.log")
	logger, closeLog, err := newLogger(buf, path, false)
	require.NoError(t, err)

	logger.With("run_id", "r-2").Debug("apply_item", "index", 1)
	logger.Info("pipeline_done")
	closeLog()

	assert.NotContains(t, buf.String(), "apply_item")
	assert.Contains(t, buf.String(), "pipeline_done")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "apply_item", first["msg"])
	assert.Equal(t, "r-2", first["run_id"])
}

func TestNewLoggerBadPath(t *testing.T) {
	_, _, err := newLogger(&bytes.Buffer{}, filepath.Join(t.TempDir(), "missing", "x.log"), false)
	assert.Error(t, err)
}
