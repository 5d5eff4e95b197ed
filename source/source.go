// Package source pairs a Decoder with an IoStream and owns the resampler
// that retargets the decoder's native rate/channel layout to whatever the
// currently open device wants. This is the one contract in the core with
// no concrete original-source file to port from (the retrieved reference
// pack does not include the upstream resampler/sdk headers); its shape
// and the resampler's algorithm are built directly from the prose
// contract the rest of this module was distilled from.
package source

import "time"

// IoStream is a seekable byte stream a Decoder reads from (and, for
// recording decoders, writes to). Implementations must be safe to Close
// more than once.
type IoStream interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	// Seek repositions the stream; whence follows io.Seeker (io.SeekStart,
	// io.SeekCurrent, io.SeekEnd). Returns an error if unseekable.
	Seek(offset int64, whence int) (int64, error)
	Tell() (int64, error)
	Size() (int64, error)
	Close() error
	IsOpen() bool
}

// Decoder turns an IoStream's bytes into interleaved float32 PCM at the
// decoder's own native rate and channel count.
type Decoder interface {
	// Open prepares the decoder to read from io. May fail on format
	// mismatch.
	Open(io IoStream) error
	Channels() int // 1..8
	Rate() int     // Hz
	// Rewind restarts playback from the beginning. Returns false if the
	// underlying source cannot seek.
	Rewind() bool
	// Duration returns the decoder's total length, 0 if unknown.
	Duration() time.Duration
	// SeekToTime returns false if the underlying source cannot seek.
	SeekToTime(pos time.Duration) bool
	// Decode writes as many interleaved samples into out as are
	// immediately available, returning the count written and whether the
	// caller should call Decode again before concluding there is no more
	// data right now (some decoders need several short internal calls to
	// resync before producing output).
	Decode(out []float32) (n int, callAgain bool)
	Name() string
}

// AudioSource owns one Decoder and one IoStream and bridges the
// decoder's native format to a target rate/channel layout via an
// internal resampler. Open is idempotent for the same target; ReadSamples
// never allocates once opened, since it runs on the audio callback
// thread.
type AudioSource struct {
	decoder Decoder
	io      IoStream
	res     *resampler

	targetRate, targetChannels int
	opened                     bool

	decodeScratch []float32 // preallocated, sized at Open
	scratchLen    int
	scratchPos    int
	decoderDone   bool
}

// New returns an unopened AudioSource over decoder and io.
func New(decoder Decoder, io IoStream) *AudioSource {
	return &AudioSource{decoder: decoder, io: io}
}

// Open establishes a resampler from the decoder's native rate/channels to
// (rate, channels), sized to decode frameSize source frames at a time.
// Calling Open again with the same (rate, channels) is a no-op.
func (s *AudioSource) Open(rate, channels, frameSize int) error {
	if s.opened && s.targetRate == rate && s.targetChannels == channels {
		return nil
	}
	if err := s.decoder.Open(s.io); err != nil {
		return err
	}
	srcChannels := s.decoder.Channels()
	s.res = newResampler(s.decoder.Rate(), rate, srcChannels, channels)
	s.targetRate = rate
	s.targetChannels = channels

	if frameSize <= 0 {
		frameSize = 1024
	}
	s.decodeScratch = make([]float32, frameSize*srcChannels)
	s.scratchLen = 0
	s.scratchPos = 0
	s.decoderDone = false
	s.opened = true
	return nil
}

// ReadSamples fills out[*cursor:outLen] (outLen a whole multiple of
// outChannels) with interleaved float32 at the target rate/channels,
// advancing *cursor. If the source is exhausted, it returns with *cursor
// short of outLen; the mixer treats that as end-of-stream for this block.
func (s *AudioSource) ReadSamples(out []float32, cursor *int, outLen int, outChannels int) {
	for *cursor+outChannels <= outLen {
		frame := out[*cursor : *cursor+outChannels]
		if !s.res.next(frame, s.pull) {
			return
		}
		*cursor += outChannels
	}
}

// pull fills frame (decoder-native channel count) with the next source
// frame, refilling the decode scratch buffer from the decoder as needed.
// No allocation.
func (s *AudioSource) pull(frame []float32) bool {
	srcChannels := s.decoder.Channels()
	for s.scratchPos+srcChannels > s.scratchLen {
		if s.decoderDone {
			return false
		}
		n, callAgain := s.decoder.Decode(s.decodeScratch)
		s.scratchLen = n
		s.scratchPos = 0
		if n == 0 {
			if !callAgain {
				s.decoderDone = true
				return false
			}
			continue
		}
	}
	copy(frame, s.decodeScratch[s.scratchPos:s.scratchPos+srcChannels])
	s.scratchPos += srcChannels
	return true
}

// Rewind restarts the source from the beginning, if the decoder supports
// it, and resets resampler/decode state so no stale samples leak across
// the seam.
func (s *AudioSource) Rewind() bool {
	if !s.decoder.Rewind() {
		return false
	}
	s.resetDecodeState()
	return true
}

// SeekToTime seeks the decoder and resets resampler/decode state.
func (s *AudioSource) SeekToTime(pos time.Duration) bool {
	if !s.decoder.SeekToTime(pos) {
		return false
	}
	s.resetDecodeState()
	return true
}

func (s *AudioSource) resetDecodeState() {
	s.scratchLen = 0
	s.scratchPos = 0
	s.decoderDone = false
	s.res.reset()
}

// Duration returns the decoder's reported total length, 0 if unknown.
func (s *AudioSource) Duration() time.Duration {
	return s.decoder.Duration()
}
