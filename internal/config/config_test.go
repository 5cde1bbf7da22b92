package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 10, cfg.Pipeline.ProbabilityTolerance)
	assert.Len(t, cfg.Pipeline.Stages, 10)
}

func TestDefaultStagesOrdered(t *testing.T) {
	stages := DefaultStages()
	seen := map[string]bool{}
	for i, s := range stages {
		assert.False(t, seen[s.Key], "duplicate key %s", s.Key)
		seen[s.Key] = true
		if i > 0 {
			assert.Greater(t, s.SortOrder, stages[i-1].SortOrder)
		}
	}
	assert.True(t, stages[7].IsWonTerminal)
	assert.True(t, stages[8].IsLostTerminal)
	assert.False(t, stages[9].IsTerminal(), "unavailable is a parked stage")
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
logging:
  level: debug
  format: json
pipeline:
  probability_tolerance: 5
  hook_timeout: 2s
  stages:
    - key: open
      display_name: Open
      sort_order: 10
      default_probability: 20
    - key: won
      display_name: Won
      sort_order: 20
      default_probability: 100
      is_won_terminal: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5, cfg.Pipeline.ProbabilityTolerance)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.HookTimeout)
	require.Len(t, cfg.Pipeline.Stages, 2)
	assert.Equal(t, "won", cfg.Pipeline.Stages[1].Key)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout, "unset keys keep defaults")
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("DEALPIPE_SERVER__PORT", "7000")
	t.Setenv("DEALPIPE_STORAGE__DRIVER", "postgres")
	t.Setenv("DEALPIPE_DATABASE__URL", "postgres://localhost/deals")
	t.Setenv("DEALPIPE_PIPELINE__ASYNC_HOOKS", "true")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/deals", cfg.Database.DSN)
	assert.True(t, cfg.Pipeline.AsyncHooks)
	assert.Len(t, cfg.Pipeline.Stages, 10)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [\n"))
		assert.Error(t, err)
	})
	t.Run("unknown storage driver", func(t *testing.T) {
		_, err := Load(writeConfig(t, "storage:\n  driver: mongo\n"))
		assert.ErrorContains(t, err, "config validation failed")
	})
	t.Run("postgres without url", func(t *testing.T) {
		_, err := Load(writeConfig(t, "storage:\n  driver: postgres\n"))
		assert.ErrorContains(t, err, "database.url")
	})
	t.Run("tolerance out of range", func(t *testing.T) {
		_, err := Load(writeConfig(t, "pipeline:\n  probability_tolerance: 150\n"))
		assert.Error(t, err)
	})
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "nats.subject_prefix", envTransform("DEALPIPE_NATS__SUBJECT_PREFIX"))
	assert.Equal(t, "auth.jwt_secret", envTransform("DEALPIPE_AUTH__JWT_SECRET"))
}
