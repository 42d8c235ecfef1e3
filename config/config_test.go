package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "labctrl-*.toml")
	require.NoError(t, err)
	_, err = f.WriteString("[Serial]\nDevice = \"/dev/ttyUSB1\"\nBaudRate = 9600\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Device)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	// Untouched sections keep their defaults.
	assert.Equal(t, Defaults.Cache.GCodeCache, cfg.Cache.GCodeCache)
	assert.Equal(t, Defaults.Thermal.MaxSetpointC, cfg.Thermal.MaxSetpointC)
}

func TestLoadMissingFileReturnsDefaultsAndError(t *testing.T) {
	cfg, err := Load("/nonexistent/path/labctrl.toml")
	assert.Error(t, err)
	assert.Equal(t, Defaults, cfg)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "labctrl-*.toml")
	require.NoError(t, err)
	_, err = f.WriteString("[Serial]\nNotAField = 1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Load(f.Name())
	assert.Error(t, err)
}
