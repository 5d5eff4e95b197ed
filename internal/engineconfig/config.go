// Package engineconfig loads engine-level tunables through viper: the
// default playback device, default audio spec and callback frame size,
// default fade durations, a mixer buffer-growth hint, and default
// processor settings (AGC/noise-gate/VAD/AEC enablement and thresholds).
// Values come from an optional config file plus MIXCORE_-prefixed
// environment overrides, following the SetDefault/ReadInConfig/
// ConfigFileNotFoundError-tolerant pattern the teacher corpus uses for
// viper-backed configuration.
package engineconfig

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// Config holds engine-wide defaults applied when a caller doesn't
// override them explicitly through the system/stream APIs.
type Config struct {
	// Device is the playback device name passed to system.AudioSystem.Init
	// ("default" for the backend's default device).
	Device string
	// Freq and Channels make up the wanted AudioSpec requested at Init.
	Freq     int
	Channels int
	// FrameSize is the callback block size, in frames, requested from the
	// backend.
	FrameSize int
	// InitialBufferSamples hints the mixer's initial buffer capacity so
	// the first few callbacks don't reallocate; the mixer's buffers still
	// only ever grow from here.
	InitialBufferSamples int

	// FadeInMs and FadeOutMs are the default fade durations applied by
	// callers that don't pass explicit ones to Play/Pause/Stop/Resume.
	FadeInMs  int64
	FadeOutMs int64

	AGCEnabled         bool
	AGCTarget          int
	NoiseGateEnabled   bool
	NoiseGateThreshold int
	VADEnabled         bool
	VADThreshold       int
	AECEnabled         bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device", "default")
	v.SetDefault("freq", 48000)
	v.SetDefault("channels", 2)
	v.SetDefault("frame_size", 1024)
	v.SetDefault("initial_buffer_samples", 4096)

	v.SetDefault("fade_in_ms", 0)
	v.SetDefault("fade_out_ms", 0)

	v.SetDefault("agc.enabled", false)
	v.SetDefault("agc.target", 70)
	v.SetDefault("noise_gate.enabled", false)
	v.SetDefault("noise_gate.threshold", 40)
	v.SetDefault("vad.enabled", false)
	v.SetDefault("vad.threshold", 50)
	v.SetDefault("aec.enabled", false)
}

// Load reads engine configuration from configPath (a TOML/YAML/JSON file;
// skipped entirely when configPath is empty), layered under
// MIXCORE_-prefixed environment overrides and the defaults in
// setDefaults. A missing config file is not an error: Load falls back to
// defaults exactly as if configPath had been empty.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIXCORE")
	v.AutomaticEnv()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("engineconfig: read config: %w", err)
			}
		}
	}

	return Config{
		Device:               v.GetString("device"),
		Freq:                 v.GetInt("freq"),
		Channels:             v.GetInt("channels"),
		FrameSize:            v.GetInt("frame_size"),
		InitialBufferSamples: v.GetInt("initial_buffer_samples"),
		FadeInMs:             v.GetInt64("fade_in_ms"),
		FadeOutMs:            v.GetInt64("fade_out_ms"),
		AGCEnabled:           v.GetBool("agc.enabled"),
		AGCTarget:            v.GetInt("agc.target"),
		NoiseGateEnabled:     v.GetBool("noise_gate.enabled"),
		NoiseGateThreshold:   v.GetInt("noise_gate.threshold"),
		VADEnabled:           v.GetBool("vad.enabled"),
		VADThreshold:         v.GetInt("vad.threshold"),
		AECEnabled:           v.GetBool("aec.enabled"),
	}, nil
}

// Default returns the built-in defaults: no config file, no environment
// overrides.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		// setDefaults alone can never produce a read error since no file
		// is read; this would only trip on a broken viper build.
		panic(err)
	}
	return cfg
}
