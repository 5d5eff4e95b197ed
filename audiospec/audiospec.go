// Package audiospec defines the device-native PCM format description and
// the pure conversion functions between interleaved float32 in [-1,1] and
// device-native interleaved PCM. It is the sample-format bridge: no
// allocation, no state, operates on caller-provided slices.
package audiospec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format is a device-native sample encoding.
type Format int

const (
	FormatU8 Format = iota
	FormatS8
	FormatS16LE
	FormatS16BE
	FormatS32LE
	FormatS32BE
	FormatF32LE
	FormatF32BE
)

// BytesPerSample reports the on-wire size of one sample in this format.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatU8, FormatS8:
		return 1
	case FormatS16LE, FormatS16BE:
		return 2
	case FormatS32LE, FormatS32BE, FormatF32LE, FormatF32BE:
		return 4
	default:
		return 0
	}
}

func (f Format) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS8:
		return "s8"
	case FormatS16LE:
		return "s16le"
	case FormatS16BE:
		return "s16be"
	case FormatS32LE:
		return "s32le"
	case FormatS32BE:
		return "s32be"
	case FormatF32LE:
		return "f32le"
	case FormatF32BE:
		return "f32be"
	default:
		return "unknown"
	}
}

// Spec describes an opened device's fixed audio format. Immutable once a
// device is open.
type Spec struct {
	Format   Format
	Channels int // [1,8]
	Freq     int // Hz
}

// BytesPerFrame is BytesPerSample * Channels.
func (s Spec) BytesPerFrame() int {
	return s.Format.BytesPerSample() * s.Channels
}

// Valid reports whether the spec's channel count is in the supported
// range and the format is recognized.
func (s Spec) Valid() bool {
	return s.Channels >= 1 && s.Channels <= 8 && s.Format.BytesPerSample() > 0
}

func clampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// WriteSample writes one float32 sample in [-1,1] to dst (which must be at
// least f.BytesPerSample() long) encoded in format f.
func WriteSample(dst []byte, f Format, v float32) {
	v = clampUnit(v)
	switch f {
	case FormatU8:
		dst[0] = byte(int16((v+1)*127.5 + 0.5))
	case FormatS8:
		dst[0] = byte(int8(math.Round(float64(v) * 127)))
	case FormatS16LE:
		binary.LittleEndian.PutUint16(dst, uint16(int16(math.Round(float64(v)*32767))))
	case FormatS16BE:
		binary.BigEndian.PutUint16(dst, uint16(int16(math.Round(float64(v)*32767))))
	case FormatS32LE:
		binary.LittleEndian.PutUint32(dst, uint32(int32(math.Round(float64(v)*2147483647))))
	case FormatS32BE:
		binary.BigEndian.PutUint32(dst, uint32(int32(math.Round(float64(v)*2147483647))))
	case FormatF32LE:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
	case FormatF32BE:
		binary.BigEndian.PutUint32(dst, math.Float32bits(v))
	}
}

// ReadSample decodes one sample of format f from src (which must be at
// least f.BytesPerSample() long) into float32 [-1,1].
func ReadSample(src []byte, f Format) float32 {
	switch f {
	case FormatU8:
		return float32(src[0])/127.5 - 1
	case FormatS8:
		return float32(int8(src[0])) / 127
	case FormatS16LE:
		return float32(int16(binary.LittleEndian.Uint16(src))) / 32767
	case FormatS16BE:
		return float32(int16(binary.BigEndian.Uint16(src))) / 32767
	case FormatS32LE:
		return float32(int32(binary.LittleEndian.Uint32(src))) / 2147483647
	case FormatS32BE:
		return float32(int32(binary.BigEndian.Uint32(src))) / 2147483647
	case FormatF32LE:
		return math.Float32frombits(binary.LittleEndian.Uint32(src))
	case FormatF32BE:
		return math.Float32frombits(binary.BigEndian.Uint32(src))
	default:
		return 0
	}
}

// ConvertFromFloat writes interleaved float32 samples in to interleaved
// device-native PCM in dst, in format f. dst must be at least
// len(src)*f.BytesPerSample() bytes. No allocation.
func ConvertFromFloat(dst []byte, f Format, src []float32) error {
	n := f.BytesPerSample()
	need := len(src) * n
	if len(dst) < need {
		return fmt.Errorf("audiospec: dst too small: have %d bytes, need %d", len(dst), need)
	}
	for i, v := range src {
		WriteSample(dst[i*n:i*n+n], f, v)
	}
	return nil
}

// ConvertToFloat reads interleaved device-native PCM in src (format f) into
// dst as interleaved float32. dst must have at least len(src)/f.BytesPerSample()
// capacity.
func ConvertToFloat(dst []float32, f Format, src []byte) error {
	n := f.BytesPerSample()
	if n == 0 {
		return fmt.Errorf("audiospec: unknown format %v", f)
	}
	count := len(src) / n
	if len(dst) < count {
		return fmt.Errorf("audiospec: dst too small: have %d samples, need %d", len(dst), count)
	}
	for i := 0; i < count; i++ {
		dst[i] = ReadSample(src[i*n:i*n+n], f)
	}
	return nil
}
