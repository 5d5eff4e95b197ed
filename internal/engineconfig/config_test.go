package engineconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyguts/mixcore/internal/engineconfig"
)

func TestDefault(t *testing.T) {
	cfg := engineconfig.Default()
	assert.Equal(t, "default", cfg.Device)
	assert.Equal(t, 48000, cfg.Freq)
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 1024, cfg.FrameSize)
	assert.Equal(t, int64(0), cfg.FadeInMs)
	assert.False(t, cfg.AGCEnabled)
	assert.False(t, cfg.NoiseGateEnabled)
	assert.False(t, cfg.VADEnabled)
	assert.False(t, cfg.AECEnabled)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := engineconfig.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, engineconfig.Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixcore.yaml")
	contents := `
device: "Focusrite Scarlett"
freq: 44100
channels: 1
frame_size: 512
fade_in_ms: 250
fade_out_ms: 500
agc:
  enabled: true
  target: 60
noise_gate:
  enabled: true
  threshold: 35
aec:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := engineconfig.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Focusrite Scarlett", cfg.Device)
	assert.Equal(t, 44100, cfg.Freq)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, 512, cfg.FrameSize)
	assert.Equal(t, int64(250), cfg.FadeInMs)
	assert.Equal(t, int64(500), cfg.FadeOutMs)
	assert.True(t, cfg.AGCEnabled)
	assert.Equal(t, 60, cfg.AGCTarget)
	assert.True(t, cfg.NoiseGateEnabled)
	assert.Equal(t, 35, cfg.NoiseGateThreshold)
	assert.True(t, cfg.AECEnabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MIXCORE_DEVICE", "env-device")
	t.Setenv("MIXCORE_FREQ", "96000")

	cfg, err := engineconfig.Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-device", cfg.Device)
	assert.Equal(t, 96000, cfg.Freq)
}
