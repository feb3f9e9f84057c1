//go:build !portaudio

package capture

import (
	"context"
	"fmt"
	"time"
)

// PortAudio records from the default input device. This build has no
// PortAudio support; Open always fails with ErrUnavailable.
type PortAudio struct {
	rate int
}

// NewPortAudio creates a device recording at rate Hz.
func NewPortAudio(rate int, _ time.Duration) *PortAudio {
	return &PortAudio{rate: rate}
}

func (d *PortAudio) SampleRate() int { return d.rate }

func (d *PortAudio) Name() string { return "portaudio" }

func (d *PortAudio) Open(context.Context) (Stream, error) {
	return nil, fmt.Errorf("%w: built without portaudio support (use -tags portaudio)", ErrUnavailable)
}

// Shutdown releases the audio library.
func Shutdown() error { return nil }

// ListDevices returns the local input devices.
func ListDevices() ([]DeviceInfo, error) {
	return nil, fmt.Errorf("%w: built without portaudio support (use -tags portaudio)", ErrUnavailable)
}
