// Package backend defines the narrow interface through which the core
// drives exactly one playback device at a time: enumerate devices, open
// one, bind a periodic callback stream to it, and tear everything down
// again. Concrete backends live in subpackages (backend/portaudio for
// production, backend/nullbackend for tests).
package backend

import (
	"errors"

	"github.com/rustyguts/mixcore/audiospec"
)

// Sentinel errors, grouped by where in the device lifecycle they originate.
var (
	// ErrNotInitialized is returned by any call made before Init
	// succeeds.
	ErrNotInitialized = errors.New("backend: not initialized")
	// ErrBackendInit is returned by Init if the underlying audio
	// subsystem is unavailable.
	ErrBackendInit = errors.New("backend: initialization failed")
	// ErrInvalidHandle is returned by device getters for an unknown or
	// already-closed handle. Setters that can no-op silently do so
	// instead (e.g. CloseDevice on an unknown handle).
	ErrInvalidHandle = errors.New("backend: invalid device handle")
	// ErrDeviceOpen is returned by OpenDevice on failure; no handle is
	// minted and no partial device exists.
	ErrDeviceOpen = errors.New("backend: device open failed")
	// ErrStreamCreate is returned by CreateStream on failure.
	ErrStreamCreate = errors.New("backend: stream creation failed")
)

// DeviceHandle is an opaque, backend-minted identifier for an open device.
type DeviceHandle uint64

// DeviceInfo is a point-in-time snapshot from enumeration; it goes stale
// the moment devices are replugged.
type DeviceInfo struct {
	ID         string
	Name       string
	IsDefault  bool
	Channels   int
	SampleRate int
}

// StreamCallback is invoked by the backend on its dedicated audio thread
// whenever the device wants more samples. The callee MUST fill out
// entirely with correctly formatted interleaved PCM in the device's
// obtained spec, zeroing first if it cannot produce enough. It MUST
// tolerate being invoked after the owning handle has begun closing.
type StreamCallback func(out []byte)

// Stream is a backend-bound, callback-driven playback stream created by
// CreateStream. Its own push-mode controls (PutData/GetData/Clear) are
// for the case where a higher layer pushes pre-mixed data instead of
// using the callback; the core's hot path only uses Start/Stop/Close.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	Pause() error
	Resume() error
	// PutData and GetData support push-mode use outside the callback
	// path; most backends, including the callback-driven ones this
	// module ships, only implement the callback path and may return
	// ErrStreamCreate-equivalent unsupported errors here.
	PutData(data []byte) (int, error)
	GetData(out []byte) (int, error)
	Clear()
}

// Backend is one playback subsystem (PortAudio, a null test double, ...).
// Exactly one instance is used per process by system.AudioSystem.
type Backend interface {
	Init() error
	// Shutdown closes every device this backend opened. Idempotent.
	Shutdown()

	EnumerateDevices(playback bool) ([]DeviceInfo, error)
	GetDefaultDevice(playback bool) (DeviceInfo, error)

	// OpenDevice opens id ("default" for the default device) requesting
	// wanted; the backend may return a different obtained spec (e.g. a
	// device that can't do the exact requested rate).
	OpenDevice(id string, wanted audiospec.Spec) (DeviceHandle, audiospec.Spec, error)
	// CloseDevice releases handle. Unknown handles are silently ignored
	// to keep teardown ordering fool-proof.
	CloseDevice(handle DeviceHandle)

	GetDeviceFormat(handle DeviceHandle) (audiospec.Format, error)
	GetDeviceFreq(handle DeviceHandle) (int, error)
	GetDeviceChannels(handle DeviceHandle) (int, error)
	GetDeviceGain(handle DeviceHandle) (float32, error)
	SetDeviceGain(handle DeviceHandle, gain float32) error

	PauseDevice(handle DeviceHandle) error
	ResumeDevice(handle DeviceHandle) error
	IsDevicePaused(handle DeviceHandle) (bool, error)

	MuteDevice(handle DeviceHandle) error
	UnmuteDevice(handle DeviceHandle) error
	IsDeviceMuted(handle DeviceHandle) (bool, error)

	CreateStream(handle DeviceHandle, spec audiospec.Spec, frameSize int, cb StreamCallback) (Stream, error)

	SupportsRecording() bool
	SupportsMute() bool
	MaxOpenDevices() int
}
