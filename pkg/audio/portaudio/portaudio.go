//go:build portaudio

// Package portaudio captures microphone audio through the PortAudio library.
//
// This package uses CGO and is only built with the "portaudio" build tag.
// It requires portaudio installed via pkg-config (brew install portaudio,
// apt install portaudio19-dev).
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

// Wrapper functions using void* to avoid CGO type issues with PaStream
static PaError pa_open_input(void **stream,
                             const PaStreamParameters *inputParams,
                             double sampleRate,
                             unsigned long framesPerBuffer) {
    return Pa_OpenStream((PaStream**)stream, inputParams, NULL, sampleRate,
                         framesPerBuffer, paClipOff, NULL, NULL);
}

static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_stop_stream(void *stream) {
    return Pa_StopStream((PaStream*)stream);
}

static PaError pa_abort_stream(void *stream) {
    return Pa_AbortStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"unsafe"
)

var (
	initOnce    sync.Once
	initErr     error
	initialized atomic.Bool
)

// paError converts a PortAudio error code to a Go error.
func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return errors.New(C.GoString(C.Pa_GetErrorText(code)))
}

// Initialize initializes the PortAudio library.
// It is safe to call multiple times.
func Initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
		initialized.Store(initErr == nil)
	})
	return initErr
}

// Terminate terminates the PortAudio library. It does nothing unless
// Initialize succeeded, and the library cannot be initialized again after.
func Terminate() error {
	if !initialized.CompareAndSwap(true, false) {
		return nil
	}
	return paError(C.Pa_Terminate())
}

// DeviceInfo contains information about an input device.
type DeviceInfo struct {
	Index             int     `json:"index" yaml:"index"`
	Name              string  `json:"name" yaml:"name"`
	MaxInputChannels  int     `json:"max_input_channels" yaml:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate" yaml:"default_sample_rate"`
	IsDefaultInput    bool    `json:"is_default_input" yaml:"is_default_input"`
}

// Devices returns the devices that can record.
func Devices() ([]DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}

	defaultInput := int(C.Pa_GetDefaultInputDevice())
	var devices []DeviceInfo
	for i := 0; i < count; i++ {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil || info.maxInputChannels <= 0 {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:             i,
			Name:              C.GoString(info.name),
			MaxInputChannels:  int(info.maxInputChannels),
			DefaultSampleRate: float64(info.defaultSampleRate),
			IsDefaultInput:    i == defaultInput,
		})
	}
	return devices, nil
}

// InputStream records mono float32 samples from the default input device.
//
// Read blocks until a full buffer is captured. Close may be called from
// another goroutine to abort a pending Read.
type InputStream struct {
	stream unsafe.Pointer
	buffer unsafe.Pointer
	frames int

	readMu sync.Mutex
	mu     sync.Mutex
	closed bool
}

// OpenInput opens and starts a mono capture stream at sampleRate that
// delivers framesPerBuffer samples per Read.
func OpenInput(sampleRate float64, framesPerBuffer int) (*InputStream, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	if framesPerBuffer <= 0 {
		return nil, errors.New("portaudio: frames per buffer must be positive")
	}

	device := C.Pa_GetDefaultInputDevice()
	if device == C.paNoDevice {
		return nil, errors.New("portaudio: no default input device")
	}
	info := C.Pa_GetDeviceInfo(device)
	params := &C.PaStreamParameters{
		device:                    device,
		channelCount:              1,
		sampleFormat:              C.paFloat32,
		suggestedLatency:          info.defaultLowInputLatency,
		hostApiSpecificStreamInfo: nil,
	}

	var stream unsafe.Pointer
	if err := paError(C.pa_open_input(&stream, params, C.double(sampleRate), C.ulong(framesPerBuffer))); err != nil {
		return nil, err
	}
	if err := paError(C.pa_start_stream(stream)); err != nil {
		C.pa_close_stream(stream)
		return nil, err
	}

	return &InputStream{
		stream: stream,
		buffer: C.malloc(C.size_t(framesPerBuffer * 4)),
		frames: framesPerBuffer,
	}, nil
}

// Frames returns the number of samples delivered per Read.
func (s *InputStream) Frames() int { return s.frames }

// Read captures one buffer into buf, which must hold at least Frames
// samples. It returns the number of samples written.
func (s *InputStream) Read(buf []float32) (int, error) {
	if len(buf) < s.frames {
		return 0, io.ErrShortBuffer
	}
	s.readMu.Lock()
	defer s.readMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	s.mu.Unlock()

	code := C.pa_read_stream(s.stream, s.buffer, C.ulong(s.frames))
	// Input overflow drops samples but the buffer is still valid.
	if code != C.paNoError && code != C.paInputOverflowed {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return 0, io.EOF
		}
		return 0, paError(code)
	}

	C.memcpy(unsafe.Pointer(&buf[0]), s.buffer, C.size_t(s.frames*4))
	return s.frames, nil
}

// Close aborts and closes the stream. It is safe to call more than once.
func (s *InputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Abort unblocks a pending Read; the stream itself is closed after it
	// returns.
	C.pa_abort_stream(s.stream)
	s.readMu.Lock()
	defer s.readMu.Unlock()
	err := paError(C.pa_close_stream(s.stream))
	C.free(s.buffer)
	return err
}
