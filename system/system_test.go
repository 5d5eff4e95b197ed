package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyguts/mixcore/audiospec"
	"github.com/rustyguts/mixcore/backend"
	"github.com/rustyguts/mixcore/backend/nullbackend"
	"github.com/rustyguts/mixcore/internal/clock"
	"github.com/rustyguts/mixcore/internal/engineconfig"
	"github.com/rustyguts/mixcore/internal/fixtures"
)

func defaultSpec() audiospec.Spec {
	return audiospec.Spec{Format: audiospec.FormatF32LE, Channels: 2, Freq: 48000}
}

func newTestSystem(t *testing.T) (*AudioSystem, *nullbackend.Backend, *clock.Manual) {
	t.Helper()
	be := nullbackend.New(defaultSpec())
	clk := clock.NewManual(0)
	sys := New(be, clk, nil)
	require.NoError(t, sys.Init("default", defaultSpec(), 256))
	return sys, be, clk
}

func (a *AudioSystem) tick(t *testing.T) {
	t.Helper()
	ns, ok := a.devStream.(*nullbackend.Stream)
	require.True(t, ok)
	ns.Tick()
}

func TestInitStartsDeviceStream(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	require.NotNil(t, sys.Mixer())
	sys.Done()
}

func TestNewStreamPlaysAndTicks(t *testing.T) {
	sys, _, clk := newTestSystem(t)
	defer sys.Done()

	dec := fixtures.NewSilenceDecoder(48000, 2, 48000)
	s := sys.NewStream(dec, fixtures.NullIoStream{})
	require.True(t, s.Play(1, 0))
	clk.Advance(1)

	sys.tick(t)
	assert.True(t, s.IsPlaying())
}

func TestSwitchDeviceResumesOnlyPreviouslyPlayingStreams(t *testing.T) {
	sys, _, clk := newTestSystem(t)
	defer sys.Done()

	playing := sys.NewStream(fixtures.NewSilenceDecoder(48000, 2, 480000), fixtures.NullIoStream{})
	require.True(t, playing.Play(0, 0))
	clk.Advance(1)

	paused := sys.NewStream(fixtures.NewSilenceDecoder(48000, 2, 480000), fixtures.NullIoStream{})
	require.True(t, paused.Play(0, 0))
	paused.Pause(0)

	stopped := sys.NewStream(fixtures.NewSilenceDecoder(48000, 2, 480000), fixtures.NullIoStream{})
	require.True(t, stopped.Play(0, 0))
	stopped.Stop(0)

	newSpec := audiospec.Spec{Format: audiospec.FormatF32LE, Channels: 2, Freq: 44100}
	require.NoError(t, sys.SwitchDevice("default", newSpec))

	assert.True(t, playing.IsPlaying())
	assert.False(t, playing.IsPaused())

	assert.True(t, paused.IsPaused())

	assert.False(t, stopped.IsPlaying())
}

func TestSwitchDeviceReopensStreamsOnFormatChange(t *testing.T) {
	sys, _, clk := newTestSystem(t)
	defer sys.Done()

	s := sys.NewStream(fixtures.NewSilenceDecoder(48000, 2, 48000), fixtures.NullIoStream{})
	require.True(t, s.Play(1, 0))
	clk.Advance(1)

	newSpec := audiospec.Spec{Format: audiospec.FormatF32LE, Channels: 2, Freq: 44100}
	require.NoError(t, sys.SwitchDevice("default", newSpec))

	assert.Equal(t, 44100, sys.Mixer().Device().Spec.Freq)
	sys.tick(t)
}

func TestCloseStreamRemovesFromTracking(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	defer sys.Done()

	s := sys.NewStream(fixtures.NewSilenceDecoder(48000, 2, 48000), fixtures.NullIoStream{})
	require.True(t, s.Play(1, 0))
	require.NoError(t, sys.CloseStream(s))
	assert.False(t, s.Alive())

	newSpec := audiospec.Spec{Format: audiospec.FormatF32LE, Channels: 2, Freq: 44100}
	require.NoError(t, sys.SwitchDevice("default", newSpec))
}

func TestSwitchDeviceFailureLeavesPreviousDeviceActive(t *testing.T) {
	sys, be, clk := newTestSystem(t)
	defer sys.Done()

	playing := sys.NewStream(fixtures.NewSilenceDecoder(48000, 2, 480000), fixtures.NullIoStream{})
	require.True(t, playing.Play(0, 0))
	clk.Advance(1)

	be.FailNextOpen()

	newSpec := audiospec.Spec{Format: audiospec.FormatF32LE, Channels: 2, Freq: 44100}
	err := sys.SwitchDevice("default", newSpec)
	require.Error(t, err)

	// Old device/mixer/stream are untouched and still usable.
	assert.Equal(t, 48000, sys.Mixer().Device().Spec.Freq)
	assert.True(t, playing.IsPlaying())
	sys.tick(t)
}

func TestInitFromConfigUsesConfigSpec(t *testing.T) {
	be := nullbackend.New(defaultSpec())
	clk := clock.NewManual(0)
	sys := New(be, clk, nil)
	defer sys.Done()

	cfg := engineconfig.Default()
	cfg.Freq = 48000
	cfg.Channels = 2
	cfg.FrameSize = 256
	require.NoError(t, sys.InitFromConfig(cfg))

	assert.Equal(t, 48000, sys.Mixer().Device().Spec.Freq)
}

func TestNewStreamWithDefaultsAttachesEnabledProcessors(t *testing.T) {
	sys, _, _ := newTestSystem(t)
	defer sys.Done()

	cfg := engineconfig.Default()
	cfg.AGCEnabled = true
	cfg.NoiseGateEnabled = true

	s := sys.NewStreamWithDefaults(fixtures.NewSilenceDecoder(48000, 2, 48000), fixtures.NullIoStream{}, cfg)
	require.True(t, s.Play(1, 0))
}

func TestNewStreamWithDefaultsAppliesConfiguredFades(t *testing.T) {
	sys, _, clk := newTestSystem(t)
	defer sys.Done()

	cfg := engineconfig.Default()
	cfg.FadeInMs = 20
	cfg.FadeOutMs = 50

	s := sys.NewStreamWithDefaults(fixtures.NewSilenceDecoder(48000, 2, 480000), fixtures.NullIoStream{}, cfg)
	require.True(t, s.PlayDefault(1))
	clk.Advance(1)
	assert.True(t, s.IsPlaying())

	s.PauseDefault()
	assert.False(t, s.IsPaused()) // deferred until the fade-out completes
}

func TestInitFromConfigAcceptsBufferHint(t *testing.T) {
	be := nullbackend.New(defaultSpec())
	clk := clock.NewManual(0)
	sys := New(be, clk, nil)
	defer sys.Done()

	cfg := engineconfig.Default()
	cfg.Freq = 48000
	cfg.Channels = 2
	cfg.FrameSize = 256
	cfg.InitialBufferSamples = 8192
	require.NoError(t, sys.InitFromConfig(cfg))
	assert.Equal(t, 48000, sys.Mixer().Device().Spec.Freq)
}

func TestDefaultProcessorsOmitsDisabledStages(t *testing.T) {
	assert.Empty(t, DefaultProcessors(engineconfig.Default()))

	cfg := engineconfig.Default()
	cfg.AECEnabled = true
	assert.Len(t, DefaultProcessors(cfg), 1)
}

func TestDoneShutsDownBackend(t *testing.T) {
	be := nullbackend.New(defaultSpec())
	clk := clock.NewManual(0)
	sys := New(be, clk, nil)
	require.NoError(t, sys.Init("default", defaultSpec(), 256))
	sys.Done()

	_, err := be.EnumerateDevices(true)
	assert.ErrorIs(t, err, backend.ErrNotInitialized)
}
