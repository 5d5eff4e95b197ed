package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyguts/mixcore/audiospec"
	"github.com/rustyguts/mixcore/dispatch"
	"github.com/rustyguts/mixcore/internal/clock"
	"github.com/rustyguts/mixcore/registry"
)

// fakeStream is a minimal Mixable used to exercise the mixer in isolation
// from the real stream state machine.
type fakeStream struct {
	token   registry.Token
	inUse   int32
	alive   bool
	samples []float32 // constant content rendered every block
	gains   Gains
	muted   bool
}

func (f *fakeStream) Token() registry.Token   { return f.token }
func (f *fakeStream) InUseCounter() *int32    { return &f.inUse }
func (f *fakeStream) Alive() bool             { return f.alive }
func (f *fakeStream) RenderBlock(now, blockMs int64, outSamples, deviceChannels int, buf []float32) (Gains, bool, Outcome) {
	n := copy(buf, f.samples)
	_ = n
	return f.gains, f.muted, Outcome{}
}

func newMixer(t *testing.T) (*Mixer, *registry.Registry[Mixable]) {
	t.Helper()
	reg := registry.New[Mixable](nil)
	disp := dispatch.New()
	device := DeviceData{Spec: audiospec.Spec{Format: audiospec.FormatF32LE, Channels: 2, Freq: 48000}, FrameSize: 4}
	m := New(reg, disp, clock.NewManual(0), device, nil)
	return m, reg
}

func addFake(reg *registry.Registry[Mixable], token registry.Token, s *fakeStream) *registry.Sentinel {
	s.alive = true
	sentinel := &registry.Sentinel{}
	reg.Add(token, s, sentinel)
	return sentinel
}

func toFloats(out []byte) []float32 {
	n := len(out) / 4
	f := make([]float32, n)
	_ = audiospec.ConvertToFloat(f, audiospec.FormatF32LE, out)
	return f
}

func TestProduceZeroesOutputWithNoStreams(t *testing.T) {
	m, _ := newMixer(t)
	out := make([]byte, 4*2*4) // 4 frames, stereo, f32
	for i := range out {
		out[i] = 0xAA
	}
	m.Produce(out)
	for _, b := range out {
		assert.Equal(t, byte(0), b)
	}
}

func TestMutedStreamContributesNothing(t *testing.T) {
	m, reg := newMixer(t)
	s := &fakeStream{token: 1, samples: []float32{0.5, 0.5, 0.5, 0.5}, gains: Gains{Left: 1, Right: 1}, muted: true}
	sentinel := addFake(reg, 1, s)
	defer func() { _ = sentinel }()

	out := make([]byte, 2*2*4)
	m.Produce(out)
	for _, v := range toFloats(out) {
		assert.Equal(t, float32(0), v)
	}
}

func TestZeroVolumeContributesNothing(t *testing.T) {
	m, reg := newMixer(t)
	s := &fakeStream{token: 1, samples: []float32{0.5, 0.5}, gains: Gains{Left: 0, Right: 0}}
	addFake(reg, 1, s)

	out := make([]byte, 1*2*4)
	m.Produce(out)
	for _, v := range toFloats(out) {
		assert.Equal(t, float32(0), v)
	}
}

// Property 8: mixer output is a linear combination of per-stream decoded
// buffers. Two streams summed equals the sum of their individually mixed
// outputs (S3).
func TestMixIsLinearCombination(t *testing.T) {
	m1, reg1 := newMixer(t)
	a := &fakeStream{token: 1, samples: []float32{0.3, -0.2, 0.1, 0.4}, gains: Gains{Left: 0.5, Right: 0.5}}
	addFake(reg1, 1, a)
	out1 := make([]byte, 2*2*4)
	m1.Produce(out1)

	m2, reg2 := newMixer(t)
	b := &fakeStream{token: 2, samples: []float32{-0.1, 0.6, 0.2, -0.3}, gains: Gains{Left: 0.5, Right: 0.5}}
	addFake(reg2, 2, b)
	out2 := make([]byte, 2*2*4)
	m2.Produce(out2)

	mBoth, regBoth := newMixer(t)
	addFake(regBoth, 1, &fakeStream{token: 1, samples: a.samples, gains: a.gains})
	addFake(regBoth, 2, &fakeStream{token: 2, samples: b.samples, gains: b.gains})
	outBoth := make([]byte, 2*2*4)
	mBoth.Produce(outBoth)

	f1, f2, fBoth := toFloats(out1), toFloats(out2), toFloats(outBoth)
	require.Len(t, fBoth, len(f1))
	for i := range fBoth {
		assert.InDelta(t, f1[i]+f2[i], fBoth[i], 1e-6)
	}
}

func TestUnityGainSkipsMultiplyPath(t *testing.T) {
	m, reg := newMixer(t)
	s := &fakeStream{token: 1, samples: []float32{1, 1}, gains: Gains{Left: 1, Right: 1}}
	addFake(reg, 1, s)
	out := make([]byte, 1*2*4)
	m.Produce(out)
	got := toFloats(out)
	assert.Equal(t, []float32{1, 1}, got)
}

func TestDeadStreamSkipped(t *testing.T) {
	m, reg := newMixer(t)
	s := &fakeStream{token: 1, samples: []float32{1, 1}, gains: Gains{Left: 1, Right: 1}}
	sentinel := addFake(reg, 1, s)
	s.alive = false // simulate destruction in progress
	_ = sentinel

	out := make([]byte, 1*2*4)
	m.Produce(out)
	for _, v := range toFloats(out) {
		assert.Equal(t, float32(0), v)
	}
}

func TestShutdownZeroesOutput(t *testing.T) {
	m, reg := newMixer(t)
	s := &fakeStream{token: 1, samples: []float32{1, 1}, gains: Gains{Left: 1, Right: 1}}
	addFake(reg, 1, s)
	m.Shutdown(true)

	out := make([]byte, 1*2*4)
	for i := range out {
		out[i] = 0xFF
	}
	m.Produce(out)
	for _, b := range out {
		assert.Equal(t, byte(0), b)
	}
}

func TestPresizeBuffersGrowsUpFront(t *testing.T) {
	m, _ := newMixer(t)
	m.PresizeBuffers(128)
	assert.GreaterOrEqual(t, cap(m.finalMix), 128)
	assert.GreaterOrEqual(t, cap(m.streamBuf), 128)

	small := make([]byte, 2*2*4)
	m.Produce(small)
	assert.GreaterOrEqual(t, cap(m.finalMix), 128)
}

func TestPresizeBuffersIgnoresNonPositive(t *testing.T) {
	m, _ := newMixer(t)
	m.PresizeBuffers(0)
	assert.Equal(t, 0, cap(m.finalMix))
	m.PresizeBuffers(-5)
	assert.Equal(t, 0, cap(m.finalMix))
}

func TestBuffersGrowMonotonically(t *testing.T) {
	m, _ := newMixer(t)
	small := make([]byte, 2*2*4)
	m.Produce(small)
	smallCap := cap(m.finalMix)

	large := make([]byte, 64*2*4)
	m.Produce(large)
	assert.GreaterOrEqual(t, cap(m.finalMix), 64*2)

	// Switching back to a small block must not reallocate down.
	m.Produce(small)
	assert.GreaterOrEqual(t, cap(m.finalMix), smallCap)
}
