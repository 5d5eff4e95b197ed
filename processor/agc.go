package processor

import "github.com/rustyguts/mixcore/internal/agc"

// AGC adapts internal/agc's automatic gain controller to the Processor
// contract. The gain-smoothing algorithm is unchanged; only the call
// shape (separate out/in buffers instead of in-place) differs.
type AGC struct {
	eng *agc.AGC
}

// NewAGC returns an AGC processor at the default target level.
func NewAGC() *AGC {
	return &AGC{eng: agc.New()}
}

// SetTarget maps level in [0,100] to the controller's target RMS.
func (p *AGC) SetTarget(level int) { p.eng.SetTarget(level) }

// Gain returns the controller's current smoothed gain.
func (p *AGC) Gain() float64 { return p.eng.Gain() }

// Reset restores the controller to its initial gain.
func (p *AGC) Reset() { p.eng.Reset() }

// Process applies the current gain to in, writing the result to out, and
// updates the internal gain estimate for the next block.
func (p *AGC) Process(out, in []float32) {
	copy(out, in)
	p.eng.Process(out)
}
