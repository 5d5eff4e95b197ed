package fixtures

import (
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rustyguts/mixcore/source"
)

// FileIoStream adapts *os.File to source.IoStream, grounded in the
// file-backed device pattern used for test fixtures elsewhere in the
// corpus (open a real file, hand its handle to a decoder).
type FileIoStream struct {
	f *os.File
}

// OpenFileIoStream opens path for reading.
func OpenFileIoStream(path string) (*FileIoStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileIoStream{f: f}, nil
}

func (s *FileIoStream) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *FileIoStream) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *FileIoStream) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}
func (s *FileIoStream) Tell() (int64, error) { return s.f.Seek(0, io.SeekCurrent) }
func (s *FileIoStream) Size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
func (s *FileIoStream) Close() error { return s.f.Close() }
func (s *FileIoStream) IsOpen() bool { return s.f != nil }

// WavDecoder reads an entire WAV file into memory up front (via
// go-audio/wav's FullPCMBuffer) and serves it as interleaved float32 PCM.
// Grounded in the Roundtable example repo's file-backed audio device,
// which uses the same decode-whole-file-then-stream-frames shape.
type WavDecoder struct {
	buf      *goaudio.IntBuffer
	rate     int
	channels int
	maxVal   float32
	pos      int
}

// NewWavDecoder returns an unopened WavDecoder.
func NewWavDecoder() *WavDecoder {
	return &WavDecoder{}
}

func (d *WavDecoder) Open(ioS source.IoStream) error {
	fs, ok := ioS.(*FileIoStream)
	if !ok {
		return fmt.Errorf("fixtures: WavDecoder requires a *FileIoStream, got %T", ioS)
	}
	dec := wav.NewDecoder(fs.f)
	if !dec.IsValidFile() {
		return fmt.Errorf("fixtures: invalid wav file: %w", dec.Err())
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return err
	}
	d.buf = buf
	d.rate = int(dec.SampleRate)
	d.channels = int(dec.NumChans)
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	d.maxVal = float32(int32(1) << (uint(bitDepth) - 1))
	d.pos = 0
	return nil
}

func (d *WavDecoder) Channels() int { return d.channels }
func (d *WavDecoder) Rate() int     { return d.rate }
func (d *WavDecoder) Rewind() bool {
	d.pos = 0
	return true
}
func (d *WavDecoder) Duration() time.Duration {
	if d.channels == 0 || d.rate == 0 {
		return 0
	}
	frames := len(d.buf.Data) / d.channels
	return time.Duration(float64(frames) / float64(d.rate) * float64(time.Second))
}
func (d *WavDecoder) SeekToTime(pos time.Duration) bool {
	frame := int(pos.Seconds() * float64(d.rate))
	idx := frame * d.channels
	if idx < 0 || idx > len(d.buf.Data) {
		return false
	}
	d.pos = idx
	return true
}
func (d *WavDecoder) Decode(out []float32) (int, bool) {
	remaining := len(d.buf.Data) - d.pos
	if remaining <= 0 {
		return 0, false
	}
	n := len(out)
	if n > remaining {
		n = remaining
	}
	for i := 0; i < n; i++ {
		out[i] = float32(d.buf.Data[d.pos+i]) / d.maxVal
	}
	d.pos += n
	return n, false
}
func (d *WavDecoder) Name() string { return "wav" }
