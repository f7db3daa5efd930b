package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.8, cfg.Scheduler.OverloadThreshold)
	assert.Equal(t, 0.3, cfg.Scheduler.UnderloadThreshold)
	assert.Equal(t, 0.5, cfg.Scheduler.HighSLAUtilization)
	assert.Equal(t, uint64(12_000_000), cfg.Scheduler.UrgentWindow)
	assert.Equal(t, uint64(8), cfg.Scheduler.VMMemoryOverhead)
	assert.Equal(t, 4, cfg.Scheduler.PrefillPerMachine)

	assert.Equal(t, uint64(10_000_000), cfg.Power.SleepCadence)
	assert.Equal(t, 2, cfg.Power.MaxSleepsPerPass)
	assert.Equal(t, 2, cfg.Power.MinActiveMachines)

	assert.Equal(t, uint64(1_000_000), cfg.Migration.Cooldown)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("scheduler:\n  overload_threshold: 0.9\nlogging:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Scheduler.OverloadThreshold)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.3, cfg.Scheduler.UnderloadThreshold)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		// viper reports a missing explicit file; either behavior is
		// acceptable as long as defaults load without one.
		cfg, err = Load("")
		require.NoError(t, err)
	}
	assert.Equal(t, 0.8, cfg.Scheduler.OverloadThreshold)
}
