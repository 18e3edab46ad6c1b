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

func TestLoadFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "database_url: postgres://localhost/recon\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/recon", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 4, cfg.Orchestrator.PoolSize)
	assert.Equal(t, 0.10, cfg.Orchestrator.MinKeyConfidence)
	assert.True(t, cfg.Orchestrator.PairSimilarColumns)
	assert.Equal(t, "local", cfg.Orchestrator.Dispatch)
	assert.Equal(t, 5*time.Minute, cfg.Locks.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.Locks.DefaultTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Jobs.Retention)
	assert.Equal(t, "local", cfg.Matcher.Mode)
	assert.Equal(t, uint32(5), cfg.Matcher.MaxFailures)
	assert.Equal(t, "RECONCILIATION", cfg.Temporal.TaskQueue)
	assert.Empty(t, cfg.Redis.Address)

	require.Len(t, cfg.Detection.Markers, 2)
	assert.Equal(t, 4, cfg.Detection.ExclusionMinMatches)
	assert.Contains(t, cfg.Detection.ExclusionFingerprint, "msisdn")
}

func TestLoadFile_FileValuesAndEnvOverrides(t *testing.T) {
	t.Setenv("RECON_SERVER_PORT", "9090")
	t.Setenv("RECON_ORCHESTRATOR_POOL_SIZE", "8")
	t.Setenv("RECON_LOCKS_SWEEP_INTERVAL", "90s")

	cfg, err := LoadFile(writeConfig(t, `
orchestrator:
  pool_size: 2
  min_key_confidence: 0.25
  dispatch: temporal
matcher:
  mode: container
  engine_container: engine-1
  timeout: 2m
redis:
  address: localhost:6379
detection:
  markers:
    - name: only
      value_substrings: [X]
      min_alias_matches: 2
`))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 8, cfg.Orchestrator.PoolSize)
	assert.Equal(t, 0.25, cfg.Orchestrator.MinKeyConfidence)
	assert.Equal(t, "temporal", cfg.Orchestrator.Dispatch)
	assert.Equal(t, 90*time.Second, cfg.Locks.SweepInterval)
	assert.Equal(t, "container", cfg.Matcher.Mode)
	assert.Equal(t, "engine-1", cfg.Matcher.EngineContainer)
	assert.Equal(t, 2*time.Minute, cfg.Matcher.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "reconciliation:progress", cfg.Redis.ProgressChannel)

	require.Len(t, cfg.Detection.Markers, 1)
	assert.Equal(t, "only", cfg.Detection.Markers[0].Name)
	assert.NotEmpty(t, cfg.Detection.ExclusionFingerprint)
}

func TestLoadFile_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"dispatch", "orchestrator:\n  dispatch: kafka\n"},
		{"matcher mode", "matcher:\n  mode: remote\n"},
		{"confidence", "orchestrator:\n  min_key_confidence: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
}
