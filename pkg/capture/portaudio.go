//go:build portaudio

package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/haivivi/voicemood/pkg/audio/portaudio"
)

// PortAudio records from the default input device.
type PortAudio struct {
	rate   int
	frames int
}

// NewPortAudio creates a device recording at rate Hz, delivering bufferDur
// of audio per read.
func NewPortAudio(rate int, bufferDur time.Duration) *PortAudio {
	frames := int(int64(rate) * int64(bufferDur) / int64(time.Second))
	return &PortAudio{rate: rate, frames: max(frames, 1)}
}

func (d *PortAudio) SampleRate() int { return d.rate }

func (d *PortAudio) Name() string { return "portaudio" }

func (d *PortAudio) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := portaudio.OpenInput(float64(d.rate), d.frames)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &portaudioStream{s: s}, nil
}

type portaudioStream struct {
	s *portaudio.InputStream
}

func (p *portaudioStream) Read(buf []float32) (int, error) {
	if len(buf) < p.s.Frames() {
		tmp := make([]float32, p.s.Frames())
		n, err := p.s.Read(tmp)
		return copy(buf, tmp[:n]), err
	}
	return p.s.Read(buf)
}

func (p *portaudioStream) Close() error { return p.s.Close() }

// Shutdown releases the audio library. Call it once no stream is open.
func Shutdown() error {
	return portaudio.Terminate()
}

// ListDevices returns the local input devices.
func ListDevices() ([]DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	out := make([]DeviceInfo, len(devs))
	for i, d := range devs {
		out[i] = DeviceInfo{
			Index:             d.Index,
			Name:              d.Name,
			Channels:          d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           d.IsDefaultInput,
		}
	}
	return out, nil
}
