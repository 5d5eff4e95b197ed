package processor

import "github.com/rustyguts/mixcore/internal/aec"

// AEC adapts internal/aec's NLMS echo canceller to the Processor
// contract. FeedFarEnd is exposed separately: the mixer has no built-in
// concept of a far-end reference signal, so a caller wiring up echo
// cancellation feeds the post-mix output to FeedFarEnd itself (e.g. in
// the host's duplex capture/playback glue), mirroring the ordering used
// by the reference client: FeedFarEnd runs after the final mix, Process
// runs on the next capture block before any other processor.
type AEC struct {
	eng *aec.AEC
}

// NewAEC returns an AEC processor sized for frameSize-sample blocks.
func NewAEC(frameSize int) *AEC {
	return &AEC{eng: aec.New(frameSize)}
}

func (p *AEC) SetEnabled(v bool) { p.eng.SetEnabled(v) }

// FeedFarEnd stores frame as the most recent playback reference.
func (p *AEC) FeedFarEnd(frame []float32) { p.eng.FeedFarEnd(frame) }

// Process cancels echo from in, writing the result to out.
func (p *AEC) Process(out, in []float32) {
	copy(out, in)
	p.eng.Process(out)
}
