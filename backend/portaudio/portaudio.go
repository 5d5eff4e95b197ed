// Package portaudio adapts github.com/gordonklaus/portaudio to the
// backend.Backend contract. PortAudio's Go binding talks in typed sample
// slices rather than raw bytes, so every stream here is opened in
// float32 and bridges to/from the device-native byte format the core
// expects via audiospec, using a preallocated scratch buffer so the
// real-time callback never allocates.
package portaudio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	pa "github.com/gordonklaus/portaudio"

	"github.com/rustyguts/mixcore/audiospec"
	"github.com/rustyguts/mixcore/backend"
)

// Backend is a backend.Backend over the process-wide PortAudio library.
// PortAudio itself is a single global subsystem; Init/Shutdown map
// directly onto pa.Initialize/pa.Terminate.
type Backend struct {
	mu      sync.Mutex
	inited  bool
	devices map[backend.DeviceHandle]*openDevice
	nextID  uint64
	log     *log.Logger
}

type openDevice struct {
	info   *pa.DeviceInfo
	gain   float32
	paused bool
	muted  bool
}

// New returns an uninitialized Backend. logger may be nil (falls back to
// log.Default()).
func New(logger *log.Logger) *Backend {
	if logger == nil {
		logger = log.Default()
	}
	return &Backend{
		devices: make(map[backend.DeviceHandle]*openDevice),
		log:     logger,
	}
}

func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inited {
		return nil
	}
	if err := pa.Initialize(); err != nil {
		b.log.Error("portaudio init failed", "err", err)
		return fmt.Errorf("%w: %v", backend.ErrBackendInit, err)
	}
	b.inited = true
	return nil
}

func (b *Backend) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return
	}
	b.devices = make(map[backend.DeviceHandle]*openDevice)
	if err := pa.Terminate(); err != nil {
		b.log.Error("portaudio terminate failed", "err", err)
	}
	b.inited = false
}

func toDeviceInfo(d *pa.DeviceInfo, isDefault bool) backend.DeviceInfo {
	return backend.DeviceInfo{
		ID:         d.Name,
		Name:       d.Name,
		IsDefault:  isDefault,
		Channels:   d.MaxOutputChannels,
		SampleRate: int(d.DefaultSampleRate),
	}
}

func (b *Backend) EnumerateDevices(playback bool) ([]backend.DeviceInfo, error) {
	if !b.inited {
		return nil, backend.ErrNotInitialized
	}
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: enumerate devices: %w", err)
	}
	def, _ := pa.DefaultOutputDevice()
	out := make([]backend.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if playback && d.MaxOutputChannels == 0 {
			continue
		}
		if !playback && d.MaxInputChannels == 0 {
			continue
		}
		out = append(out, toDeviceInfo(d, def != nil && d.Name == def.Name))
	}
	return out, nil
}

func (b *Backend) GetDefaultDevice(playback bool) (backend.DeviceInfo, error) {
	if !b.inited {
		return backend.DeviceInfo{}, backend.ErrNotInitialized
	}
	var d *pa.DeviceInfo
	var err error
	if playback {
		d, err = pa.DefaultOutputDevice()
	} else {
		d, err = pa.DefaultInputDevice()
	}
	if err != nil {
		return backend.DeviceInfo{}, fmt.Errorf("portaudio: default device: %w", err)
	}
	return toDeviceInfo(d, true), nil
}

func findDevice(id string) (*pa.DeviceInfo, error) {
	if id == "" || id == "default" {
		return pa.DefaultOutputDevice()
	}
	devices, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: device %q not found", id)
}

func (b *Backend) OpenDevice(id string, wanted audiospec.Spec) (backend.DeviceHandle, audiospec.Spec, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return 0, audiospec.Spec{}, backend.ErrNotInitialized
	}
	dev, err := findDevice(id)
	if err != nil {
		b.log.Error("portaudio open device failed", "id", id, "err", err)
		return 0, audiospec.Spec{}, fmt.Errorf("%w: %v", backend.ErrDeviceOpen, err)
	}

	channels := wanted.Channels
	if channels > dev.MaxOutputChannels {
		channels = dev.MaxOutputChannels
	}
	obtained := audiospec.Spec{
		Format:   audiospec.FormatF32LE,
		Channels: channels,
		Freq:     wanted.Freq,
	}

	b.nextID++
	handle := backend.DeviceHandle(b.nextID)
	b.devices[handle] = &openDevice{info: dev, gain: 1}
	return handle, obtained, nil
}

func (b *Backend) CloseDevice(handle backend.DeviceHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.devices, handle)
}

func (b *Backend) lookup(handle backend.DeviceHandle) (*openDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[handle]
	if !ok {
		return nil, backend.ErrInvalidHandle
	}
	return d, nil
}

func (b *Backend) GetDeviceFormat(handle backend.DeviceHandle) (audiospec.Format, error) {
	if _, err := b.lookup(handle); err != nil {
		return 0, err
	}
	return audiospec.FormatF32LE, nil
}

func (b *Backend) GetDeviceFreq(handle backend.DeviceHandle) (int, error) {
	d, err := b.lookup(handle)
	if err != nil {
		return 0, err
	}
	return int(d.info.DefaultSampleRate), nil
}

func (b *Backend) GetDeviceChannels(handle backend.DeviceHandle) (int, error) {
	d, err := b.lookup(handle)
	if err != nil {
		return 0, err
	}
	return d.info.MaxOutputChannels, nil
}

func (b *Backend) GetDeviceGain(handle backend.DeviceHandle) (float32, error) {
	d, err := b.lookup(handle)
	if err != nil {
		return 0, err
	}
	return d.gain, nil
}

func (b *Backend) SetDeviceGain(handle backend.DeviceHandle, gain float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[handle]
	if !ok {
		return backend.ErrInvalidHandle
	}
	d.gain = gain
	return nil
}

func (b *Backend) PauseDevice(handle backend.DeviceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[handle]
	if !ok {
		return backend.ErrInvalidHandle
	}
	d.paused = true
	return nil
}

func (b *Backend) ResumeDevice(handle backend.DeviceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[handle]
	if !ok {
		return backend.ErrInvalidHandle
	}
	d.paused = false
	return nil
}

func (b *Backend) IsDevicePaused(handle backend.DeviceHandle) (bool, error) {
	d, err := b.lookup(handle)
	if err != nil {
		return false, err
	}
	return d.paused, nil
}

func (b *Backend) MuteDevice(handle backend.DeviceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[handle]
	if !ok {
		return backend.ErrInvalidHandle
	}
	d.muted = true
	return nil
}

func (b *Backend) UnmuteDevice(handle backend.DeviceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[handle]
	if !ok {
		return backend.ErrInvalidHandle
	}
	d.muted = false
	return nil
}

func (b *Backend) IsDeviceMuted(handle backend.DeviceHandle) (bool, error) {
	d, err := b.lookup(handle)
	if err != nil {
		return false, err
	}
	return d.muted, nil
}

func (b *Backend) CreateStream(handle backend.DeviceHandle, spec audiospec.Spec, frameSize int, cb backend.StreamCallback) (backend.Stream, error) {
	dev, err := b.lookup(handle)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		byteBuf: make([]byte, frameSize*spec.BytesPerFrame()),
		cb:      cb,
	}

	params := pa.StreamParameters{
		Output: pa.StreamDeviceParameters{
			Device:   dev.info,
			Channels: spec.Channels,
			Latency:  dev.info.DefaultLowOutputLatency,
		},
		SampleRate:      float64(spec.Freq),
		FramesPerBuffer: frameSize,
	}

	paStream, err := pa.OpenStream(params, s.paCallback)
	if err != nil {
		b.log.Error("portaudio open stream failed", "err", err)
		return nil, fmt.Errorf("%w: %v", backend.ErrStreamCreate, err)
	}
	s.stream = paStream
	return s, nil
}

func (b *Backend) SupportsRecording() bool { return true }
func (b *Backend) SupportsMute() bool      { return true }
func (b *Backend) MaxOpenDevices() int     { return 4 }

// Stream wraps a *pa.Stream. The PortAudio callback delivers a []float32
// buffer; byteBuf is reused every call (never reallocated) as the scratch
// space the device-native backend.StreamCallback writes into.
type Stream struct {
	stream  *pa.Stream
	byteBuf []byte
	cb      backend.StreamCallback
	closing int32
}

// paCallback is invoked by PortAudio's internal audio thread. It must not
// allocate or block.
func (s *Stream) paCallback(out []float32) {
	if atomic.LoadInt32(&s.closing) != 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}
	s.cb(s.byteBuf)
	_ = audiospec.ConvertToFloat(out, audiospec.FormatF32LE, s.byteBuf)
}

func (s *Stream) Start() error { return s.stream.Start() }
func (s *Stream) Stop() error  { return s.stream.Stop() }

func (s *Stream) Close() error {
	atomic.StoreInt32(&s.closing, 1)
	if err := s.stream.Stop(); err != nil {
		// Best-effort: Close below still runs, matching the teacher's
		// stop-before-close discipline for avoiding a callback touching
		// a closed stream.
		_ = err
	}
	return s.stream.Close()
}

func (s *Stream) Pause() error  { return s.Stop() }
func (s *Stream) Resume() error { return s.Start() }

func (s *Stream) PutData(data []byte) (int, error) { return 0, backend.ErrStreamCreate }
func (s *Stream) GetData(out []byte) (int, error)  { return 0, backend.ErrStreamCreate }
func (s *Stream) Clear()                           {}
