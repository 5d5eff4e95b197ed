package fixtures

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyguts/mixcore/source"
)

func rms(samples []float32) float64 {
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// S1/S2-style check: a 1-second sine source at 0.3 amplitude has RMS
// approximately amplitude/sqrt(2).
func TestSineDecoderRMS(t *testing.T) {
	const rate = 44100
	dec := NewSineDecoder(rate, 1, 440, 0.3, rate) // 1 second
	src := source.New(dec, NullIoStream{})
	require.NoError(t, src.Open(rate, 1, 512))

	out := make([]float32, rate)
	cursor := 0
	src.ReadSamples(out, &cursor, len(out), 1)
	assert.Equal(t, rate, cursor)

	got := rms(out)
	want := 0.3 / math.Sqrt2
	assert.InDelta(t, want, got, want*0.01)
}

func TestSilenceDecoderProducesZeros(t *testing.T) {
	dec := NewSilenceDecoder(44100, 2, 100)
	src := source.New(dec, NullIoStream{})
	require.NoError(t, src.Open(44100, 2, 256))

	out := make([]float32, 200)
	cursor := 0
	src.ReadSamples(out, &cursor, len(out), 2)
	assert.Equal(t, 200, cursor)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestSineDecoderExhaustsAfterTotalFrames(t *testing.T) {
	dec := NewSineDecoder(8000, 1, 100, 1, 8000) // 1 second @ 8kHz
	src := source.New(dec, NullIoStream{})
	require.NoError(t, src.Open(8000, 1, 256))

	out := make([]float32, 9000)
	cursor := 0
	src.ReadSamples(out, &cursor, len(out), 1)
	assert.Equal(t, 8000, cursor)
}
