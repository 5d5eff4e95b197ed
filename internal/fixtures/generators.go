// Package fixtures provides synthetic and WAV-backed Decoder/IoStream
// implementations for exercising the engine end to end without a real
// audio device: sine and silence generators for property-based and
// scenario tests, plus a WAV file reader for tests that want real
// recorded PCM.
package fixtures

import (
	"io"
	"math"
	"time"

	"github.com/rustyguts/mixcore/source"
)

// NullIoStream is a no-op source.IoStream for decoders that generate
// samples rather than read them, such as SineDecoder and SilenceDecoder.
type NullIoStream struct{}

func (NullIoStream) Read(p []byte) (int, error)                   { return 0, io.EOF }
func (NullIoStream) Write(p []byte) (int, error)                  { return len(p), nil }
func (NullIoStream) Seek(offset int64, whence int) (int64, error) { return 0, nil }
func (NullIoStream) Tell() (int64, error)                         { return 0, nil }
func (NullIoStream) Size() (int64, error)                         { return 0, nil }
func (NullIoStream) Close() error                                 { return nil }
func (NullIoStream) IsOpen() bool                                 { return true }

// SineDecoder emits a fixed-frequency sine wave for totalFrames frames,
// then reports exhaustion.
type SineDecoder struct {
	rate, channels int
	freq           float64
	amplitude      float32
	totalFrames    int

	framesEmitted int
	phase         float64
}

// NewSineDecoder returns a SineDecoder at the given rate/channels,
// frequency in Hz, peak amplitude in [0,1], running for totalFrames.
func NewSineDecoder(rate, channels int, freq float64, amplitude float32, totalFrames int) *SineDecoder {
	return &SineDecoder{rate: rate, channels: channels, freq: freq, amplitude: amplitude, totalFrames: totalFrames}
}

func (d *SineDecoder) Open(source.IoStream) error { return nil }
func (d *SineDecoder) Channels() int              { return d.channels }
func (d *SineDecoder) Rate() int                  { return d.rate }
func (d *SineDecoder) Rewind() bool {
	d.framesEmitted = 0
	d.phase = 0
	return true
}
func (d *SineDecoder) Duration() time.Duration {
	return time.Duration(float64(d.totalFrames) / float64(d.rate) * float64(time.Second))
}
func (d *SineDecoder) SeekToTime(pos time.Duration) bool {
	frame := int(pos.Seconds() * float64(d.rate))
	if frame < 0 || frame > d.totalFrames {
		return false
	}
	d.framesEmitted = frame
	d.phase = float64(frame) * 2 * math.Pi * d.freq / float64(d.rate)
	return true
}
func (d *SineDecoder) Decode(out []float32) (int, bool) {
	framesCap := len(out) / d.channels
	remaining := d.totalFrames - d.framesEmitted
	if remaining <= 0 {
		return 0, false
	}
	n := framesCap
	if n > remaining {
		n = remaining
	}
	step := 2 * math.Pi * d.freq / float64(d.rate)
	for f := 0; f < n; f++ {
		v := float32(math.Sin(d.phase)) * d.amplitude
		for c := 0; c < d.channels; c++ {
			out[f*d.channels+c] = v
		}
		d.phase += step
	}
	d.framesEmitted += n
	return n * d.channels, false
}
func (d *SineDecoder) Name() string { return "sine" }

// SilenceDecoder emits totalFrames frames of digital silence, then
// reports exhaustion.
type SilenceDecoder struct {
	rate, channels int
	totalFrames    int
	framesEmitted  int
}

// NewSilenceDecoder returns a SilenceDecoder at rate/channels, running
// for totalFrames.
func NewSilenceDecoder(rate, channels, totalFrames int) *SilenceDecoder {
	return &SilenceDecoder{rate: rate, channels: channels, totalFrames: totalFrames}
}

func (d *SilenceDecoder) Open(source.IoStream) error { return nil }
func (d *SilenceDecoder) Channels() int              { return d.channels }
func (d *SilenceDecoder) Rate() int                  { return d.rate }
func (d *SilenceDecoder) Rewind() bool {
	d.framesEmitted = 0
	return true
}
func (d *SilenceDecoder) Duration() time.Duration {
	return time.Duration(float64(d.totalFrames) / float64(d.rate) * float64(time.Second))
}
func (d *SilenceDecoder) SeekToTime(pos time.Duration) bool {
	frame := int(pos.Seconds() * float64(d.rate))
	if frame < 0 || frame > d.totalFrames {
		return false
	}
	d.framesEmitted = frame
	return true
}
func (d *SilenceDecoder) Decode(out []float32) (int, bool) {
	framesCap := len(out) / d.channels
	remaining := d.totalFrames - d.framesEmitted
	if remaining <= 0 {
		return 0, false
	}
	n := framesCap
	if n > remaining {
		n = remaining
	}
	for i := 0; i < n*d.channels; i++ {
		out[i] = 0
	}
	d.framesEmitted += n
	return n * d.channels, false
}
func (d *SilenceDecoder) Name() string { return "silence" }
