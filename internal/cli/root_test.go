package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "triage", cmd.Use)
	assert.Contains(t, cmd.Long, "exactly once")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "watch", "reindex", "history", "show", "scenario"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	flags := cmd.PersistentFlags()

	verbose := flags.Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "text", flags.Lookup("format").DefValue)

	for _, name := range []string{"config", "state-dir", "timezone", "save-mode", "default-calendar", "default-list", "log-file"} {
		f := flags.Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue, name)
	}
}

func TestInvalidFormat(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.execute(t, "--format", "yaml", "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBadConfigFile(t *testing.T) {
	e := newTestEnv(t)
	path := writeFile(t, t.TempDir(), "config.cue", `save_mode: "turbo"`)

	_, err := e.execute(t, "--config", path, "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestBadSaveModeFlag(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.execute(t, "--save-mode", "turbo", "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
