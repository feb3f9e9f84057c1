package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/haivivi/voicemood/pkg/audio/resampler"
)

// Resample returns a Device delivering the streams of dev at rate Hz. It
// returns dev unchanged when the rates already match.
func Resample(dev Device, rate int) Device {
	if dev.SampleRate() == rate {
		return dev
	}
	return &resampledDevice{dev: dev, rate: rate}
}

type resampledDevice struct {
	dev  Device
	rate int
}

func (d *resampledDevice) SampleRate() int { return d.rate }

func (d *resampledDevice) Name() string {
	return fmt.Sprintf("%s@%d", d.dev.Name(), d.rate)
}

func (d *resampledDevice) Open(ctx context.Context) (Stream, error) {
	r, err := resampler.New(d.dev.SampleRate(), d.rate)
	if err != nil {
		return nil, err
	}
	src, err := d.dev.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &resampledStream{src: src, r: r, in: make([]float32, 4096)}, nil
}

type resampledStream struct {
	src Stream
	r   *resampler.Resampler
	in  []float32

	pending []float32
	err     error
	flushed bool
}

func (s *resampledStream) Read(buf []float32) (int, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		n, err := s.src.Read(s.in)
		if n > 0 {
			out, rerr := s.r.Process(s.in[:n])
			if rerr != nil {
				return 0, rerr
			}
			s.pending = out
		}
		if errors.Is(err, io.EOF) && !s.flushed {
			s.flushed = true
			tail, ferr := s.r.Flush()
			if ferr != nil {
				return 0, ferr
			}
			s.pending = append(s.pending, tail...)
		}
		s.err = err
	}
	n := copy(buf, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *resampledStream) Close() error { return s.src.Close() }
