// Package mixer implements the per-callback mixing core: it owns two
// grow-only float buffers (the final mix and a per-stream block that
// processors run on in place; there is no separate processor scratch
// buffer), snapshots the live stream registry once per
// block, decodes/processes/fades/gains each stream's contribution, sums
// them with the stereo/mono mix kernel, and converts the result to the
// device's native format.
//
// Mixer never imports the stream package; streams participate through the
// Mixable interface so stream can freely depend on mixer without a cycle.
package mixer

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/rustyguts/mixcore/audiospec"
	"github.com/rustyguts/mixcore/dispatch"
	"github.com/rustyguts/mixcore/internal/clock"
	"github.com/rustyguts/mixcore/registry"
)

// Gains are the per-channel linear gains a stream contributes for one
// block. Right is ignored for mono output.
type Gains struct {
	Left  float32
	Right float32
}

// Outcome reports bookkeeping a stream wants performed after one block:
// a finish or loop event to enqueue on the dispatcher.
type Outcome struct {
	HasFinished bool
	HasLooped   bool
	FinishFn    func()
	LoopFn      func()
}

// Mixable is the boundary a live registry entry must implement. Streams
// implement this directly.
type Mixable interface {
	// Token identifies this stream in the registry and dispatcher.
	Token() registry.Token
	// InUseCounter exposes the atomic refcount the mixer bumps for the
	// duration it touches this stream.
	InUseCounter() *int32
	// Alive reports the atomic liveness flag.
	Alive() bool
	// RenderBlock decodes, runs processors, advances the fade envelope,
	// and resolves any pending pause/stop action for one callback block.
	// buf is out_samples long in the device's channel layout and must be
	// filled with this stream's raw (pre-gain) contribution; the mixer
	// applies gains and sums separately. muted streams still decode (to
	// keep playback position accurate) but contribute nothing to the mix.
	RenderBlock(now, blockMs int64, outSamples, deviceChannels int, buf []float32) (gains Gains, muted bool, outcome Outcome)
}

// DeviceData is the currently active device's fixed format plus the
// frame size the backend requests per callback. Replaced wholesale on a
// device switch; buffer capacity is unaffected (grow-only, persists
// across switches).
type DeviceData struct {
	Spec      audiospec.Spec
	FrameSize int
}

// Mixer is safe for concurrent SetDevice/Shutdown from user threads while
// Produce runs on the audio callback thread. Produce itself is not
// reentrant-safe (the backend guarantees a single callback thread).
type Mixer struct {
	reg        *registry.Registry[Mixable]
	dispatcher *dispatch.CallbackDispatcher
	clk        clock.Clock
	log        *log.Logger

	deviceMu sync.RWMutex
	device   DeviceData

	shutdown atomic.Bool

	// Grow-only scratch, rebuilt to the largest out_samples ever
	// requested. Touched only from Produce (audio thread).
	finalMix  []float32
	streamBuf []float32
}

// New constructs a Mixer bound to reg and dispatcher, with clk as its
// time source (clock.Monotonic{} in production) and device as the
// initially active device format.
func New(reg *registry.Registry[Mixable], dispatcher *dispatch.CallbackDispatcher, clk clock.Clock, device DeviceData, logger *log.Logger) *Mixer {
	if logger == nil {
		logger = log.Default()
	}
	if clk == nil {
		clk = clock.Monotonic{}
	}
	return &Mixer{
		reg:        reg,
		dispatcher: dispatcher,
		clk:        clk,
		device:     device,
		log:        logger,
	}
}

// SetDevice installs a new active device format, used by system.AudioSystem
// during a device switch. Buffer capacity carries over untouched.
func (m *Mixer) SetDevice(device DeviceData) {
	m.deviceMu.Lock()
	m.device = device
	m.deviceMu.Unlock()
}

// Device returns the currently active device format.
func (m *Mixer) Device() DeviceData {
	m.deviceMu.RLock()
	defer m.deviceMu.RUnlock()
	return m.device
}

// Shutdown causes all subsequent Produce calls to zero their output
// buffer and skip mixing entirely, until cleared by a fresh SetDevice
// sequence from system.AudioSystem (system clears it when reinitializing).
func (m *Mixer) Shutdown(v bool) {
	m.shutdown.Store(v)
}

func zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

// PresizeBuffers grows the scratch buffers to at least samples up front,
// so the first few Produce calls don't pay for a reallocation. Must be
// called before the backend starts invoking Produce; it touches the same
// buffers Produce does with no locking of its own.
func (m *Mixer) PresizeBuffers(samples int) {
	if samples <= 0 {
		return
	}
	m.growBuffers(samples)
}

func (m *Mixer) growBuffers(outSamples int) {
	if cap(m.finalMix) < outSamples {
		m.finalMix = make([]float32, outSamples)
	} else {
		m.finalMix = m.finalMix[:outSamples]
	}
	if cap(m.streamBuf) < outSamples {
		m.streamBuf = make([]float32, outSamples)
	} else {
		m.streamBuf = m.streamBuf[:outSamples]
	}
}

// Produce is the audio callback entry point: it must write exactly
// len(out) bytes of interleaved PCM in the active device format. Called
// on the backend's dedicated audio thread.
func (m *Mixer) Produce(out []byte) {
	if m.shutdown.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}

	device := m.Device()
	bps := device.Spec.Format.BytesPerSample()
	if bps == 0 || device.Spec.Channels == 0 || device.Spec.Freq == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}

	outSamples := len(out) / bps
	outFrames := outSamples / device.Spec.Channels
	m.growBuffers(outSamples)

	final := m.finalMix[:outSamples]
	zero(final)

	entries := m.reg.GetValidStreams()

	now := m.clk.NowMs()
	blockMs := int64(outFrames) * 1000 / int64(device.Spec.Freq)

	for _, e := range entries {
		s := e.Value
		if !s.Alive() {
			continue
		}
		guard := registry.Acquire(s.InUseCounter())
		if !s.Alive() {
			guard.Release()
			continue
		}

		streamBuf := m.streamBuf[:outSamples]
		zero(streamBuf)

		gains, muted, outcome := s.RenderBlock(now, blockMs, outSamples, device.Spec.Channels, streamBuf)

		guard.Release()

		if !muted && (gains.Left > 0 || gains.Right > 0) {
			mixInto(final, streamBuf, device.Spec.Channels, gains)
		}

		if outcome.HasFinished && outcome.FinishFn != nil {
			m.dispatcher.Enqueue(dispatch.Token(s.Token()), outcome.FinishFn)
		} else if outcome.HasLooped && outcome.LoopFn != nil {
			m.dispatcher.Enqueue(dispatch.Token(s.Token()), outcome.LoopFn)
		}
	}

	// Best-effort conversion: a malformed out length (not a whole number
	// of frames) truncates rather than panics, matching the "write what
	// you have" backend contract.
	convLen := outSamples
	if convLen > len(final) {
		convLen = len(final)
	}
	_ = audiospec.ConvertFromFloat(out[:convLen*bps], device.Spec.Format, final[:convLen])
}

// mixInto is the mix kernel: two specialized hot loops for stereo and
// mono, each skipping the multiply when gain is exactly unity.
func mixInto(dst, src []float32, channels int, g Gains) {
	switch channels {
	case 2:
		n := len(dst)
		if len(src) < n {
			n = len(src)
		}
		n -= n % 2
		if g.Left == 1 && g.Right == 1 {
			for i := 0; i < n; i += 2 {
				dst[i] += src[i]
				dst[i+1] += src[i+1]
			}
			return
		}
		for i := 0; i < n; i += 2 {
			dst[i] += src[i] * g.Left
			dst[i+1] += src[i+1] * g.Right
		}
	default:
		n := len(dst)
		if len(src) < n {
			n = len(src)
		}
		gain := g.Left
		if gain == 1 {
			for i := 0; i < n; i++ {
				dst[i] += src[i]
			}
			return
		}
		for i := 0; i < n; i++ {
			dst[i] += src[i] * gain
		}
	}
}
