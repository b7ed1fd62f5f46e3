package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plantcare.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pins:\n  fan: 22\n  pump: 23\npump_duration: 3s\n"), 0o600))
	t.Setenv("PLANTCARE_PUMP_PIN", "24")

	require.NoError(t, runCmd.ParseFlags([]string{"--config", path, "--pump-duration", "7", "--dry-run"}))
	cfg, err := loadConfig(runCmd)
	require.NoError(t, err)

	assert.Equal(t, 22, cfg.Pins.Fan, "file beats defaults")
	assert.Equal(t, 24, cfg.Pins.Pump, "environment beats file")
	assert.Equal(t, 7*time.Second, cfg.PumpDuration, "flag beats file")
	assert.True(t, cfg.DryRun)
}

func TestLoadConfigRejectsMissingExplicitFile(t *testing.T) {
	require.NoError(t, serveCmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}))
	_, err := loadConfig(serveCmd)
	assert.Error(t, err)
}
