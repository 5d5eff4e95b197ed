package processor

import "github.com/rustyguts/mixcore/internal/noisegate"

// NoiseGate adapts internal/noisegate's hard gate to the Processor
// contract.
type NoiseGate struct {
	eng *noisegate.Gate
}

// NewNoiseGate returns a NoiseGate processor at default threshold/hold,
// disabled until SetEnabled(true).
func NewNoiseGate() *NoiseGate {
	g := noisegate.New()
	g.SetEnabled(false)
	return &NoiseGate{eng: g}
}

func (p *NoiseGate) SetEnabled(v bool)      { p.eng.SetEnabled(v) }
func (p *NoiseGate) Enabled() bool          { return p.eng.Enabled() }
func (p *NoiseGate) SetThreshold(level int) { p.eng.SetThreshold(level) }
func (p *NoiseGate) IsOpen() bool           { return p.eng.IsOpen() }

// Process gates in, writing the (possibly zeroed) result to out.
func (p *NoiseGate) Process(out, in []float32) {
	copy(out, in)
	p.eng.Process(out)
}
