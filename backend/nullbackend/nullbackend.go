// Package nullbackend is an in-memory backend.Backend implementation with
// no OS dependency, used by tests (and as a headless fallback). Its
// streams only fire their callback when explicitly pumped via Stream.Tick,
// which lets tests drive the mixer deterministically instead of racing a
// real audio thread.
package nullbackend

import (
	"sync"

	"github.com/rustyguts/mixcore/audiospec"
	"github.com/rustyguts/mixcore/backend"
)

// Backend is a single-process, in-memory backend.Backend.
type Backend struct {
	mu           sync.Mutex
	inited       bool
	nextID       uint64
	devices      map[backend.DeviceHandle]*deviceState
	gains        map[backend.DeviceHandle]float32
	paused       map[backend.DeviceHandle]bool
	muted        map[backend.DeviceHandle]bool
	maxOpen      int
	fakeList     []backend.DeviceInfo
	failNextOpen bool
}

type deviceState struct {
	info audiospec.Spec
}

// New returns a Backend that reports a single fake "default" playback
// device at the given default spec.
func New(defaultSpec audiospec.Spec) *Backend {
	return &Backend{
		devices: make(map[backend.DeviceHandle]*deviceState),
		gains:   make(map[backend.DeviceHandle]float32),
		paused:  make(map[backend.DeviceHandle]bool),
		muted:   make(map[backend.DeviceHandle]bool),
		maxOpen: 8,
		fakeList: []backend.DeviceInfo{{
			ID:         "default",
			Name:       "Null Device",
			IsDefault:  true,
			Channels:   defaultSpec.Channels,
			SampleRate: defaultSpec.Freq,
		}},
	}
}

func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inited = true
	return nil
}

func (b *Backend) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = make(map[backend.DeviceHandle]*deviceState)
	b.inited = false
}

func (b *Backend) EnumerateDevices(playback bool) ([]backend.DeviceInfo, error) {
	if !b.inited {
		return nil, backend.ErrNotInitialized
	}
	return append([]backend.DeviceInfo(nil), b.fakeList...), nil
}

func (b *Backend) GetDefaultDevice(playback bool) (backend.DeviceInfo, error) {
	if !b.inited {
		return backend.DeviceInfo{}, backend.ErrNotInitialized
	}
	return b.fakeList[0], nil
}

// FailNextOpen makes the next single OpenDevice call return
// backend.ErrDeviceOpen instead of succeeding, for exercising callers'
// error paths without a real unavailable device.
func (b *Backend) FailNextOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNextOpen = true
}

func (b *Backend) OpenDevice(id string, wanted audiospec.Spec) (backend.DeviceHandle, audiospec.Spec, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return 0, audiospec.Spec{}, backend.ErrNotInitialized
	}
	if b.failNextOpen {
		b.failNextOpen = false
		return 0, audiospec.Spec{}, backend.ErrDeviceOpen
	}
	b.nextID++
	h := backend.DeviceHandle(b.nextID)
	b.devices[h] = &deviceState{info: wanted}
	b.gains[h] = 1
	return h, wanted, nil
}

func (b *Backend) CloseDevice(handle backend.DeviceHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.devices, handle)
	delete(b.gains, handle)
	delete(b.paused, handle)
	delete(b.muted, handle)
}

func (b *Backend) lookup(handle backend.DeviceHandle) (*deviceState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[handle]
	if !ok {
		return nil, backend.ErrInvalidHandle
	}
	return d, nil
}

func (b *Backend) GetDeviceFormat(handle backend.DeviceHandle) (audiospec.Format, error) {
	d, err := b.lookup(handle)
	if err != nil {
		return 0, err
	}
	return d.info.Format, nil
}

func (b *Backend) GetDeviceFreq(handle backend.DeviceHandle) (int, error) {
	d, err := b.lookup(handle)
	if err != nil {
		return 0, err
	}
	return d.info.Freq, nil
}

func (b *Backend) GetDeviceChannels(handle backend.DeviceHandle) (int, error) {
	d, err := b.lookup(handle)
	if err != nil {
		return 0, err
	}
	return d.info.Channels, nil
}

func (b *Backend) GetDeviceGain(handle backend.DeviceHandle) (float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gains[handle]
	if !ok {
		return 0, backend.ErrInvalidHandle
	}
	return g, nil
}

func (b *Backend) SetDeviceGain(handle backend.DeviceHandle, gain float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[handle]; !ok {
		return backend.ErrInvalidHandle
	}
	b.gains[handle] = gain
	return nil
}

func (b *Backend) PauseDevice(handle backend.DeviceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[handle]; !ok {
		return backend.ErrInvalidHandle
	}
	b.paused[handle] = true
	return nil
}

func (b *Backend) ResumeDevice(handle backend.DeviceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[handle]; !ok {
		return backend.ErrInvalidHandle
	}
	b.paused[handle] = false
	return nil
}

func (b *Backend) IsDevicePaused(handle backend.DeviceHandle) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[handle]; !ok {
		return false, backend.ErrInvalidHandle
	}
	return b.paused[handle], nil
}

func (b *Backend) MuteDevice(handle backend.DeviceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[handle]; !ok {
		return backend.ErrInvalidHandle
	}
	b.muted[handle] = true
	return nil
}

func (b *Backend) UnmuteDevice(handle backend.DeviceHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[handle]; !ok {
		return backend.ErrInvalidHandle
	}
	b.muted[handle] = false
	return nil
}

func (b *Backend) IsDeviceMuted(handle backend.DeviceHandle) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[handle]; !ok {
		return false, backend.ErrInvalidHandle
	}
	return b.muted[handle], nil
}

func (b *Backend) CreateStream(handle backend.DeviceHandle, spec audiospec.Spec, frameSize int, cb backend.StreamCallback) (backend.Stream, error) {
	if _, err := b.lookup(handle); err != nil {
		return nil, backend.ErrStreamCreate
	}
	return &Stream{spec: spec, frameSize: frameSize, cb: cb}, nil
}

func (b *Backend) SupportsRecording() bool { return false }
func (b *Backend) SupportsMute() bool      { return true }
func (b *Backend) MaxOpenDevices() int     { return b.maxOpen }

// Stream is a nullbackend.Backend's callback-driven stream. It produces
// samples only when Tick is called, giving tests full control over the
// callback cadence instead of racing a real timer.
type Stream struct {
	mu        sync.Mutex
	spec      audiospec.Spec
	frameSize int
	cb        backend.StreamCallback
	running   bool
	closed    bool
}

// Tick synchronously invokes the bound callback once, as if the device
// just requested one frameSize block. No-op if not running.
func (s *Stream) Tick() []byte {
	s.mu.Lock()
	running, cb, spec, frameSize := s.running, s.cb, s.spec, s.frameSize
	s.mu.Unlock()
	if !running || cb == nil {
		return nil
	}
	buf := make([]byte, frameSize*spec.BytesPerFrame())
	cb(buf)
	return buf
}

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.closed = true
	return nil
}

func (s *Stream) Pause() error  { return s.Stop() }
func (s *Stream) Resume() error { return s.Start() }

func (s *Stream) PutData(data []byte) (int, error) { return 0, backend.ErrStreamCreate }
func (s *Stream) GetData(out []byte) (int, error)  { return 0, backend.ErrStreamCreate }
func (s *Stream) Clear()                           {}
