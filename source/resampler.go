package source

// resampler performs linear-interpolation sample-rate conversion plus a
// simple channel remap (duplicate for mono->N, average for N->mono,
// repeat-indexing otherwise). All scratch is preallocated at construction
// so next never allocates, since it executes on the audio callback
// thread via AudioSource.ReadSamples.
type resampler struct {
	srcRate, dstRate         int
	srcChannels, dstChannels int

	prev, cur, interp []float32 // srcChannels-wide scratch
	haveCur           bool
	ended             bool    // pull has reported exhaustion; cur holds a copy of the last frame
	frac              float64 // fractional position of the next output sample, in source frames, relative to prev
}

func newResampler(srcRate, dstRate, srcChannels, dstChannels int) *resampler {
	return &resampler{
		srcRate:     srcRate,
		dstRate:     dstRate,
		srcChannels: srcChannels,
		dstChannels: dstChannels,
		prev:        make([]float32, srcChannels),
		cur:         make([]float32, srcChannels),
		interp:      make([]float32, srcChannels),
	}
}

// reset clears interpolation history; called on Rewind/SeekToTime so the
// next sample doesn't interpolate across a discontinuity.
func (r *resampler) reset() {
	r.haveCur = false
	r.ended = false
	r.frac = 0
	for i := range r.prev {
		r.prev[i] = 0
	}
	for i := range r.cur {
		r.cur[i] = 0
	}
}

// next writes one dst-channel frame into dst[:dstChannels], pulling
// source-native frames via pull as needed. Returns false once pull
// reports exhaustion and no further output can be produced.
func (r *resampler) next(dst []float32, pull func(frame []float32) bool) bool {
	if !r.haveCur {
		if !pull(r.prev) {
			return false
		}
		if !pull(r.cur) {
			copy(r.cur, r.prev)
			r.ended = true
		}
		r.haveCur = true
	}

	ratio := float64(r.srcRate) / float64(r.dstRate)
	for r.frac >= 1 {
		if r.ended {
			return false
		}
		copy(r.prev, r.cur)
		if !pull(r.cur) {
			// prev is now the last source frame; hold it for the rest of
			// its interval.
			copy(r.cur, r.prev)
			r.ended = true
		}
		r.frac -= 1
	}

	t := float32(r.frac)
	for c := 0; c < r.srcChannels; c++ {
		r.interp[c] = r.prev[c] + (r.cur[c]-r.prev[c])*t
	}
	remapChannels(r.interp, dst[:r.dstChannels])
	r.frac += ratio
	return true
}

func remapChannels(src, dst []float32) {
	switch {
	case len(src) == len(dst):
		copy(dst, src)
	case len(src) == 1:
		for i := range dst {
			dst[i] = src[0]
		}
	case len(dst) == 1:
		var sum float32
		for _, v := range src {
			sum += v
		}
		dst[0] = sum / float32(len(src))
	default:
		for i := range dst {
			dst[i] = src[i%len(src)]
		}
	}
}
