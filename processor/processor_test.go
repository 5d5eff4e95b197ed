package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAGCProcessDoesNotMutateInput(t *testing.T) {
	p := NewAGC()
	in := []float32{0.01, 0.01, 0.01, 0.01}
	inCopy := append([]float32(nil), in...)
	out := make([]float32, len(in))
	p.Process(out, in)
	assert.Equal(t, inCopy, in)
}

func TestNoiseGateSilencesBelowThreshold(t *testing.T) {
	p := NewNoiseGate()
	p.SetEnabled(true)
	p.SetThreshold(50)
	in := make([]float32, 32)
	for i := range in {
		in[i] = 0.0001
	}
	out := make([]float32, len(in))
	p.Process(out, in)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestVADGatePassesLoudFrames(t *testing.T) {
	p := NewVADGate()
	p.SetEnabled(true)
	in := make([]float32, 64)
	for i := range in {
		if i%2 == 0 {
			in[i] = 0.8
		} else {
			in[i] = -0.8
		}
	}
	out := make([]float32, len(in))
	p.Process(out, in)
	assert.NotEqual(t, float32(0), out[0])
}

func TestVADGateDisabledPassesThrough(t *testing.T) {
	p := NewVADGate()
	in := []float32{0, 0, 0, 0}
	out := make([]float32, len(in))
	p.Process(out, in)
	assert.Equal(t, in, out)
}

func TestAECProcessRunsWithoutFarEnd(t *testing.T) {
	p := NewAEC(8)
	in := make([]float32, 8)
	for i := range in {
		in[i] = 0.1
	}
	out := make([]float32, len(in))
	p.Process(out, in)
	assert.Len(t, out, 8)
}
