// Package stream implements the per-stream playback state machine: an
// AudioStream owns one AudioSource and carries volume/pan/mute, fade,
// loop accounting, deferred pause/stop actions, and finish/loop
// callbacks, driven once per audio callback block by the mixer through
// the mixer.Mixable interface.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rustyguts/mixcore/dispatch"
	"github.com/rustyguts/mixcore/fade"
	"github.com/rustyguts/mixcore/internal/clock"
	"github.com/rustyguts/mixcore/mixer"
	"github.com/rustyguts/mixcore/processor"
	"github.com/rustyguts/mixcore/registry"
	"github.com/rustyguts/mixcore/source"
)

// PendingAction is the deferred action a fade-out resolves to once it
// completes.
type PendingAction int

const (
	PendingNone PendingAction = iota
	PendingPause
	PendingStop
)

var tokenCounter uint64

// NextToken mints a fresh, monotonic, non-zero StreamToken.
func NextToken() registry.Token {
	return registry.Token(atomic.AddUint64(&tokenCounter, 1))
}

// AudioStream is safe for concurrent use: every public method takes the
// stream's own coarse mutex, matching the audio callback's access via
// RenderBlock.
type AudioStream struct {
	token    registry.Token
	sentinel *registry.Sentinel
	reg      *registry.Registry[mixer.Mixable]
	disp     *dispatch.CallbackDispatcher
	clk      clock.Clock
	log      *log.Logger

	src *source.AudioSource

	// target spec the source should be (re-)opened against; updated by
	// the owning system on device switch.
	deviceRate, deviceChannels, frameSize int

	alive atomic.Bool
	inUse int32

	mu                sync.Mutex
	isOpenFlag        bool
	isPlaying         bool
	isPaused          bool
	volume            float32
	stereoPos         float32
	internalVolume    float32
	muted             bool
	currentIteration  uint32
	wantedIterations  uint32
	playbackStartTick int64
	starting          bool
	pendingAction     PendingAction
	fade              fade.Envelope
	defaultFadeInMs   int64
	defaultFadeOutMs  int64
	processors        []processor.Processor
	finishCallback    func(*AudioStream)
	loopCallback      func(*AudioStream)
}

// New constructs an unopened AudioStream over src, registered against reg
// and disp once played. A nil clk defaults to clock.Monotonic{}; a nil
// logger defaults to log.Default().
func New(src *source.AudioSource, reg *registry.Registry[mixer.Mixable], disp *dispatch.CallbackDispatcher, clk clock.Clock, logger *log.Logger) *AudioStream {
	if clk == nil {
		clk = clock.Monotonic{}
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &AudioStream{
		token:          NextToken(),
		sentinel:       &registry.Sentinel{},
		reg:            reg,
		disp:           disp,
		clk:            clk,
		log:            logger,
		src:            src,
		volume:         1,
		internalVolume: 1,
	}
	s.alive.Store(true)
	return s
}

// --- mixer.Mixable ---

func (s *AudioStream) Token() registry.Token { return s.token }
func (s *AudioStream) InUseCounter() *int32  { return &s.inUse }
func (s *AudioStream) Alive() bool           { return s.alive.Load() }

// RenderBlock is called by the mixer once per callback block, with
// s.inUse already held via registry.Acquire by the caller.
func (s *AudioStream) RenderBlock(now, blockMs int64, outSamples, deviceChannels int, buf []float32) (mixer.Gains, bool, mixer.Outcome) {
	s.mu.Lock()

	if s.wantedIterations != 0 && s.currentIteration >= s.wantedIterations {
		s.mu.Unlock()
		return mixer.Gains{}, true, mixer.Outcome{}
	}
	if s.isPaused {
		s.mu.Unlock()
		return mixer.Gains{}, true, mixer.Outcome{}
	}

	outOffset := 0
	if s.starting {
		outOffset = evalOutOffset(now, s.playbackStartTick, blockMs, outSamples, deviceChannels)
		s.starting = false
	}
	if outOffset >= outSamples {
		// Start time falls beyond this whole block; nothing to render
		// yet, picked up next callback.
		s.mu.Unlock()
		return mixer.Gains{}, true, mixer.Outcome{}
	}

	cursor := outOffset
	s.src.ReadSamples(buf, &cursor, outSamples, deviceChannels)

	hasFinished := false
	hasLooped := false
	var finishFn, loopFn func()
	removeFromRegistry := false

	if cursor < outSamples {
		// Source exhausted this block.
		if !s.src.Rewind() {
			// Unseekable: play once, then silence.
		} else if s.wantedIterations != 0 {
			s.currentIteration++
			if s.currentIteration >= s.wantedIterations {
				s.isPlaying = false
				hasFinished = true
				finishFn = s.invokeFinishCallback
				removeFromRegistry = true
			} else {
				hasLooped = true
				loopFn = s.invokeLoopCallback
			}
		} else {
			hasLooped = true
			loopFn = s.invokeLoopCallback
		}
	}

	for _, p := range s.processors {
		p.Process(buf, buf)
	}

	env := s.fade.Gain(now)
	if env == 0 && s.fade.State() == fade.None {
		switch s.pendingAction {
		case PendingStop:
			s.isPlaying = false
			hasFinished = true
			finishFn = s.invokeFinishCallback
			removeFromRegistry = true
			s.pendingAction = PendingNone
		case PendingPause:
			s.isPaused = true
			removeFromRegistry = true
			s.pendingAction = PendingNone
		}
	}

	gains := computeGains(s.volume, s.internalVolume, env, s.stereoPos, deviceChannels)
	muted := s.muted

	s.mu.Unlock()

	if removeFromRegistry {
		s.reg.Remove(s.token)
	}

	return gains, muted, mixer.Outcome{
		HasFinished: hasFinished,
		HasLooped:   hasLooped,
		FinishFn:    finishFn,
		LoopFn:      loopFn,
	}
}

func computeGains(volume, internalVolume, env, pan float32, channels int) mixer.Gains {
	g := volume * internalVolume * env
	if channels == 2 {
		left, right := g, g
		if pan < 0 {
			left *= 1 + pan
		} else if pan > 0 {
			right *= 1 - pan
		}
		return mixer.Gains{Left: left, Right: right}
	}
	return mixer.Gains{Left: g, Right: g}
}

// evalOutOffset computes how many samples into this block a just-started
// stream's first audible sample should be delayed, so it lands at the
// instant playbackStartTick actually occurred, even though the block
// itself began at an earlier or equal "now". If the start instant falls
// beyond the whole block, it returns outSamples (render nothing this
// block).
func evalOutOffset(now, playbackStartTick, blockMs int64, outSamples, deviceChannels int) int {
	if blockMs <= 0 || playbackStartTick <= now {
		return 0
	}
	delay := playbackStartTick - now
	if delay >= blockMs {
		return outSamples
	}
	outFrames := outSamples / deviceChannels
	frameOffset := int(float64(delay) / float64(blockMs) * float64(outFrames))
	sampleOffset := frameOffset * deviceChannels
	if sampleOffset > outSamples {
		sampleOffset = outSamples
	}
	return sampleOffset
}

func (s *AudioStream) invokeFinishCallback() {
	s.mu.Lock()
	cb := s.finishCallback
	s.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (s *AudioStream) invokeLoopCallback() {
	s.mu.Lock()
	cb := s.loopCallback
	s.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// --- lifecycle ---

// SetTargetSpec records the device format/frame size the source should
// (re-)open against; called by the owning system at construction and on
// every device switch.
func (s *AudioStream) SetTargetSpec(rate, channels, frameSize int) {
	s.mu.Lock()
	s.deviceRate, s.deviceChannels, s.frameSize = rate, channels, frameSize
	s.mu.Unlock()
}

// Open asks the source to (re-)open against the current target spec.
// Idempotent for an unchanged target.
func (s *AudioStream) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.src.Open(s.deviceRate, s.deviceChannels, s.frameSize); err != nil {
		return err
	}
	s.isOpenFlag = true
	return nil
}

// Play starts playback: iterations=0 means infinite looping, fadeInMs=0
// means no fade. Auto-opens if not already open; returns false if that
// open fails.
func (s *AudioStream) Play(iterations uint32, fadeInMs int64) bool {
	s.mu.Lock()
	if !s.isOpenFlag {
		if err := s.src.Open(s.deviceRate, s.deviceChannels, s.frameSize); err != nil {
			s.mu.Unlock()
			return false
		}
		s.isOpenFlag = true
	}
	now := s.clk.NowMs()
	s.wantedIterations = iterations
	s.currentIteration = 0
	s.playbackStartTick = now
	s.starting = true
	s.pendingAction = PendingNone
	if fadeInMs > 0 {
		s.fade.StartFadeIn(now, fadeInMs)
	} else {
		s.fade.Reset()
	}
	s.isPlaying = true
	s.isPaused = false
	s.mu.Unlock()

	s.reg.Add(s.token, s, s.sentinel)
	return true
}

// SetDefaultFades sets the fade durations PlayDefault/StopDefault/
// PauseDefault/ResumeDefault apply in place of an explicit argument.
func (s *AudioStream) SetDefaultFades(fadeInMs, fadeOutMs int64) {
	s.mu.Lock()
	s.defaultFadeInMs = fadeInMs
	s.defaultFadeOutMs = fadeOutMs
	s.mu.Unlock()
}

// PlayDefault is Play using the stream's default fade-in duration.
func (s *AudioStream) PlayDefault(iterations uint32) bool {
	s.mu.Lock()
	fadeInMs := s.defaultFadeInMs
	s.mu.Unlock()
	return s.Play(iterations, fadeInMs)
}

// StopDefault is Stop using the stream's default fade-out duration.
func (s *AudioStream) StopDefault() {
	s.mu.Lock()
	fadeOutMs := s.defaultFadeOutMs
	s.mu.Unlock()
	s.Stop(fadeOutMs)
}

// PauseDefault is Pause using the stream's default fade-out duration.
func (s *AudioStream) PauseDefault() {
	s.mu.Lock()
	fadeOutMs := s.defaultFadeOutMs
	s.mu.Unlock()
	s.Pause(fadeOutMs)
}

// ResumeDefault is Resume using the stream's default fade-in duration.
func (s *AudioStream) ResumeDefault() {
	s.mu.Lock()
	fadeInMs := s.defaultFadeInMs
	s.mu.Unlock()
	s.Resume(fadeInMs)
}

// Stop ends playback. fadeOutMs>0 defers the stop until the fade
// completes; otherwise it takes effect immediately.
func (s *AudioStream) Stop(fadeOutMs int64) {
	s.mu.Lock()
	now := s.clk.NowMs()
	if fadeOutMs > 0 {
		s.pendingAction = PendingStop
		s.fade.StartFadeOut(now, fadeOutMs)
		s.mu.Unlock()
		return
	}
	s.isPlaying = false
	s.pendingAction = PendingNone
	s.fade.Reset()
	s.mu.Unlock()

	s.reg.Remove(s.token)
	s.src.Rewind()
}

// Pause suspends playback. fadeOutMs>0 defers the pause until the fade
// completes; otherwise it takes effect immediately.
func (s *AudioStream) Pause(fadeOutMs int64) {
	s.mu.Lock()
	now := s.clk.NowMs()
	if fadeOutMs > 0 {
		s.pendingAction = PendingPause
		s.fade.StartFadeOut(now, fadeOutMs)
		s.mu.Unlock()
		return
	}
	s.isPaused = true
	s.pendingAction = PendingNone
	s.mu.Unlock()
}

// Resume continues a paused stream. fadeInMs>0 starts a fade-in;
// otherwise internal_volume resets to 1 and any in-progress fade is
// cleared.
func (s *AudioStream) Resume(fadeInMs int64) {
	s.mu.Lock()
	now := s.clk.NowMs()
	s.pendingAction = PendingNone
	s.isPaused = false
	s.isPlaying = true
	if fadeInMs > 0 {
		s.fade.StartFadeIn(now, fadeInMs)
	} else {
		s.internalVolume = 1
		s.fade.Reset()
	}
	s.mu.Unlock()

	s.reg.Add(s.token, s, s.sentinel)
}

// Close runs the four-step destruction protocol: mark dead, remove from
// the registry, wait out any in-flight callback, then tear down state
// under the stream lock (acquired only after the wait, never before).
func (s *AudioStream) Close() error {
	s.alive.Store(false)
	s.reg.Remove(s.token)
	registry.WaitForIdle(&s.inUse)

	s.mu.Lock()
	s.src.Rewind()
	s.isPlaying = false
	s.isPaused = false
	s.finishCallback = nil
	s.loopCallback = nil
	s.mu.Unlock()

	s.disp.Cleanup(dispatch.Token(s.token))
	return nil
}

// --- accessors / setters ---

func (s *AudioStream) Rewind() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Rewind()
}

func (s *AudioStream) SeekToTime(pos time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.SeekToTime(pos)
}

func (s *AudioStream) Duration() time.Duration {
	return s.src.Duration()
}

// SetVolume clamps only the lower bound: a stream can be played louder
// than unity gain.
func (s *AudioStream) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *AudioStream) Volume() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetStereoPosition clamps both bounds to [-1, 1].
func (s *AudioStream) SetStereoPosition(p float32) {
	if p < -1 {
		p = -1
	}
	if p > 1 {
		p = 1
	}
	s.mu.Lock()
	s.stereoPos = p
	s.mu.Unlock()
}

func (s *AudioStream) StereoPosition() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stereoPos
}

func (s *AudioStream) Mute() {
	s.mu.Lock()
	s.muted = true
	s.mu.Unlock()
}

func (s *AudioStream) Unmute() {
	s.mu.Lock()
	s.muted = false
	s.mu.Unlock()
}

func (s *AudioStream) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *AudioStream) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPlaying
}

func (s *AudioStream) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPaused
}

// AddProcessor is idempotent by processor identity.
func (s *AudioStream) AddProcessor(p processor.Processor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.processors {
		if existing == p {
			return
		}
	}
	s.processors = append(s.processors, p)
}

func (s *AudioStream) RemoveProcessor(p processor.Processor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.processors {
		if existing == p {
			s.processors = append(s.processors[:i], s.processors[i+1:]...)
			return
		}
	}
}

func (s *AudioStream) ClearProcessors() {
	s.mu.Lock()
	s.processors = nil
	s.mu.Unlock()
}

func (s *AudioStream) SetFinishCallback(cb func(*AudioStream)) {
	s.mu.Lock()
	s.finishCallback = cb
	s.mu.Unlock()
}

func (s *AudioStream) RemoveFinishCallback() {
	s.SetFinishCallback(nil)
}

func (s *AudioStream) SetLoopCallback(cb func(*AudioStream)) {
	s.mu.Lock()
	s.loopCallback = cb
	s.mu.Unlock()
}

func (s *AudioStream) RemoveLoopCallback() {
	s.SetLoopCallback(nil)
}
