// Package system implements the process-wide audio system: it owns the
// one active backend device, the mixer bound to it, every live stream,
// and the event dispatcher, and carries stream playback state across a
// device switch.
package system

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/rustyguts/mixcore/audiospec"
	"github.com/rustyguts/mixcore/backend"
	"github.com/rustyguts/mixcore/dispatch"
	"github.com/rustyguts/mixcore/internal/clock"
	"github.com/rustyguts/mixcore/internal/engineconfig"
	"github.com/rustyguts/mixcore/mixer"
	"github.com/rustyguts/mixcore/processor"
	"github.com/rustyguts/mixcore/registry"
	"github.com/rustyguts/mixcore/source"
	"github.com/rustyguts/mixcore/stream"
)

// AudioSystem is safe for concurrent use. Its own locking only ever
// guards bookkeeping (handle, tracked streams); the mixer and registry
// it owns have their own concurrency contracts for the audio thread.
type AudioSystem struct {
	be   backend.Backend
	reg  *registry.Registry[mixer.Mixable]
	disp *dispatch.CallbackDispatcher
	clk  clock.Clock
	log  *log.Logger
	mx   *mixer.Mixer

	mu        sync.Mutex
	handle    backend.DeviceHandle
	devStream backend.Stream
	frameSize int
	streams   map[registry.Token]*stream.AudioStream
}

// New returns an uninitialized AudioSystem driving be. A nil clk defaults
// to clock.Monotonic{}; a nil logger to log.Default().
func New(be backend.Backend, clk clock.Clock, logger *log.Logger) *AudioSystem {
	if clk == nil {
		clk = clock.Monotonic{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AudioSystem{
		be:      be,
		reg:     registry.New[mixer.Mixable](logger),
		disp:    dispatch.New(),
		clk:     clk,
		log:     logger,
		streams: make(map[registry.Token]*stream.AudioStream),
	}
}

// Backend returns the backend this system drives.
func (a *AudioSystem) Backend() backend.Backend { return a.be }

// Dispatcher returns the event dispatcher; call Dispatch (or Dispatcher().Dispatch)
// from a host-driven, non-real-time tick to run queued finish/loop callbacks.
func (a *AudioSystem) Dispatcher() *dispatch.CallbackDispatcher { return a.disp }

// Mixer returns the mixer bound to the active device, nil before Init.
func (a *AudioSystem) Mixer() *mixer.Mixer { return a.mx }

// Dispatch runs every queued finish/loop callback.
func (a *AudioSystem) Dispatch() {
	a.disp.Dispatch()
}

// Init initializes the backend, opens deviceID ("default" for the
// system default) at wanted, and starts a callback stream bound to the
// mixer at frameSize frames per callback.
func (a *AudioSystem) Init(deviceID string, wanted audiospec.Spec, frameSize int) error {
	return a.init(deviceID, wanted, frameSize, 0)
}

func (a *AudioSystem) init(deviceID string, wanted audiospec.Spec, frameSize, bufferHint int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.be.Init(); err != nil {
		return fmt.Errorf("system: backend init: %w", err)
	}
	handle, obtained, err := a.be.OpenDevice(deviceID, wanted)
	if err != nil {
		return fmt.Errorf("system: open device: %w", err)
	}

	a.mx = mixer.New(a.reg, a.disp, a.clk, mixer.DeviceData{Spec: obtained, FrameSize: frameSize}, a.log)
	a.mx.PresizeBuffers(bufferHint)

	devStream, err := a.be.CreateStream(handle, obtained, frameSize, a.mx.Produce)
	if err != nil {
		a.be.CloseDevice(handle)
		return fmt.Errorf("system: create stream: %w", err)
	}
	if err := devStream.Start(); err != nil {
		_ = devStream.Close()
		a.be.CloseDevice(handle)
		return fmt.Errorf("system: start stream: %w", err)
	}

	a.handle = handle
	a.devStream = devStream
	a.frameSize = frameSize

	for _, s := range a.streams {
		s.SetTargetSpec(obtained.Freq, obtained.Channels, frameSize)
	}

	a.log.Info("audio system initialized", "device", deviceID, "freq", obtained.Freq, "channels", obtained.Channels)
	return nil
}

// InitFromConfig is a convenience wrapper around Init that takes its
// device id, wanted spec, and frame size from cfg (as produced by
// engineconfig.Load/Default) instead of requiring the caller to pick them
// apart by hand.
func (a *AudioSystem) InitFromConfig(cfg engineconfig.Config) error {
	wanted := audiospec.Spec{
		Format:   audiospec.FormatF32LE,
		Channels: cfg.Channels,
		Freq:     cfg.Freq,
	}
	return a.init(cfg.Device, wanted, cfg.FrameSize, cfg.InitialBufferSamples)
}

// DefaultProcessors builds the processor chain cfg's AGC/noise-gate/VAD/AEC
// toggles describe, in the fixed order noise gate, then VAD gate, then
// AGC, then echo cancellation. Disabled stages are omitted entirely rather than
// included inert, since an AudioStream's processors list runs every entry
// unconditionally each block.
func DefaultProcessors(cfg engineconfig.Config) []processor.Processor {
	var chain []processor.Processor
	if cfg.NoiseGateEnabled {
		ng := processor.NewNoiseGate()
		ng.SetEnabled(true)
		ng.SetThreshold(cfg.NoiseGateThreshold)
		chain = append(chain, ng)
	}
	if cfg.VADEnabled {
		vg := processor.NewVADGate()
		vg.SetEnabled(true)
		vg.SetThreshold(cfg.VADThreshold)
		chain = append(chain, vg)
	}
	if cfg.AGCEnabled {
		agc := processor.NewAGC()
		agc.SetTarget(cfg.AGCTarget)
		chain = append(chain, agc)
	}
	if cfg.AECEnabled {
		chain = append(chain, processor.NewAEC(cfg.FrameSize*cfg.Channels))
	}
	return chain
}

// NewStreamWithDefaults creates a stream exactly like NewStream, attaches
// DefaultProcessors(cfg), and sets cfg's fade durations as the stream's
// defaults for PlayDefault/StopDefault/PauseDefault/ResumeDefault.
func (a *AudioSystem) NewStreamWithDefaults(decoder source.Decoder, io source.IoStream, cfg engineconfig.Config) *stream.AudioStream {
	s := a.NewStream(decoder, io)
	for _, p := range DefaultProcessors(cfg) {
		s.AddProcessor(p)
	}
	s.SetDefaultFades(cfg.FadeInMs, cfg.FadeOutMs)
	return s
}

// NewStream creates an AudioStream over decoder/io, targeted at the
// current device spec, and tracks it so a later SwitchDevice can
// re-open and restore it.
func (a *AudioSystem) NewStream(decoder source.Decoder, io source.IoStream) *stream.AudioStream {
	a.mu.Lock()
	defer a.mu.Unlock()

	src := source.New(decoder, io)
	s := stream.New(src, a.reg, a.disp, a.clk, a.log)
	if a.mx != nil {
		d := a.mx.Device()
		s.SetTargetSpec(d.Spec.Freq, d.Spec.Channels, d.FrameSize)
	}
	a.streams[s.Token()] = s
	return s
}

// CloseStream destroys s and stops tracking it.
func (a *AudioSystem) CloseStream(s *stream.AudioStream) error {
	a.mu.Lock()
	delete(a.streams, s.Token())
	a.mu.Unlock()
	return s.Close()
}

// SwitchDevice tears down the active device and backend stream, opens
// deviceID at wanted, and re-opens every tracked stream's source against
// the new spec if the format changed, restoring only the play/pause
// state each stream had before the switch: a stream that was playing
// and not paused resumes; everything else (paused, stopped, never
// started) stays exactly as it was.
func (a *AudioSystem) SwitchDevice(deviceID string, wanted audiospec.Spec) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mx == nil {
		return backend.ErrNotInitialized
	}

	type savedState struct {
		playing bool
		paused  bool
	}
	prior := make(map[registry.Token]savedState, len(a.streams))
	for tok, s := range a.streams {
		prior[tok] = savedState{playing: s.IsPlaying(), paused: s.IsPaused()}
		if s.IsPlaying() && !s.IsPaused() {
			s.Pause(0)
		}
	}
	resumePrior := func() {
		for tok, s := range a.streams {
			was := prior[tok]
			if was.playing && !was.paused {
				s.Resume(0)
			}
		}
	}

	oldSpec := a.mx.Device().Spec

	// Open and bind the new device fully before touching the old one: if
	// any of this fails, the old device/stream is left running untouched
	// and the previously-playing streams are resumed, matching the "leaves
	// the previous device active" failure mode.
	newHandle, obtained, err := a.be.OpenDevice(deviceID, wanted)
	if err != nil {
		resumePrior()
		return fmt.Errorf("system: switch device open: %w", err)
	}

	devStream, err := a.be.CreateStream(newHandle, obtained, a.frameSize, a.mx.Produce)
	if err != nil {
		a.be.CloseDevice(newHandle)
		resumePrior()
		return fmt.Errorf("system: switch device create stream: %w", err)
	}

	// Past this point the new device is committed: stop and release the
	// old one.
	a.mx.Shutdown(true)
	if a.devStream != nil {
		if err := a.devStream.Stop(); err != nil {
			a.log.Warn("stop old stream failed during device switch", "err", err)
		}
		if err := a.devStream.Close(); err != nil {
			a.log.Warn("close old stream failed during device switch", "err", err)
		}
	}
	a.be.CloseDevice(a.handle)

	a.mx.SetDevice(mixer.DeviceData{Spec: obtained, FrameSize: a.frameSize})

	formatChanged := obtained.Freq != oldSpec.Freq || obtained.Channels != oldSpec.Channels
	if formatChanged {
		for tok, s := range a.streams {
			s.SetTargetSpec(obtained.Freq, obtained.Channels, a.frameSize)
			if err := s.Open(); err != nil {
				a.log.Error("stream failed to re-open after device switch", "token", tok, "err", err)
			}
		}
	}

	if err := devStream.Start(); err != nil {
		return fmt.Errorf("system: switch device start stream: %w", err)
	}

	a.handle = newHandle
	a.devStream = devStream
	a.mx.Shutdown(false)

	resumePrior()

	a.log.Info("device switched", "device", deviceID, "freq", obtained.Freq, "channels", obtained.Channels)
	return nil
}

// Done tears down the active device, the backend, and every tracked
// stream. The AudioSystem is not usable afterward.
func (a *AudioSystem) Done() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mx != nil {
		a.mx.Shutdown(true)
	}
	for tok, s := range a.streams {
		_ = s.Close()
		delete(a.streams, tok)
	}
	if a.devStream != nil {
		_ = a.devStream.Stop()
		_ = a.devStream.Close()
		a.devStream = nil
	}
	if a.handle != 0 {
		a.be.CloseDevice(a.handle)
	}
	a.be.Shutdown()
}
