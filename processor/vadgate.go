package processor

import "github.com/rustyguts/mixcore/internal/vad"

// VADGate adapts internal/vad's energy-based voice-activity detector into
// a silence-suppression Processor: frames classified as non-speech are
// zeroed rather than merely flagged, since the Processor contract has no
// separate out-of-band signaling channel.
type VADGate struct {
	eng *vad.VAD
}

// NewVADGate returns a VADGate at default threshold/hangover, disabled
// until SetEnabled(true).
func NewVADGate() *VADGate {
	v := vad.New()
	v.SetEnabled(false)
	return &VADGate{eng: v}
}

func (p *VADGate) SetEnabled(v bool)      { p.eng.SetEnabled(v) }
func (p *VADGate) Enabled() bool          { return p.eng.Enabled() }
func (p *VADGate) SetThreshold(level int) { p.eng.SetThreshold(level) }

// Process zeroes in's copy in out whenever the detector classifies the
// block as non-speech; otherwise passes it through unchanged.
func (p *VADGate) Process(out, in []float32) {
	copy(out, in)
	if !p.eng.Enabled() {
		return
	}
	r := vad.RMS(out)
	if !p.eng.ShouldSend(r) {
		for i := range out {
			out[i] = 0
		}
	}
}
