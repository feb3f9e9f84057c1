// Package wav reads and writes PCM WAV files as mono float32 samples.
package wav

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/haivivi/voicemood/pkg/audio/resampler"
)

// ErrInvalid is returned for data that is not a supported PCM WAV file.
var ErrInvalid = errors.New("wav: invalid or unsupported file")

// Clip is decoded audio downmixed to mono.
type Clip struct {
	Samples    []float32
	SampleRate int
	// Channels and BitDepth describe the source file.
	Channels int
	BitDepth int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Decode reads an integer PCM WAV file and averages its channels into mono
// samples in [-1, 1).
func Decode(r io.ReadSeeker) (*Clip, error) {
	d := gowav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrInvalid
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav: decode: %w", err)
	}
	channels := int(d.NumChans)
	depth := int(d.BitDepth)
	if channels <= 0 || depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("%w: %d channels, %d bits", ErrInvalid, channels, depth)
	}

	full := math.Ldexp(1, depth-1)
	// 8-bit WAV samples are unsigned.
	var offset float64
	if depth == 8 {
		offset = full
	}
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range samples {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) - offset
		}
		samples[i] = float32(sum / float64(channels) / full)
	}
	return &Clip{
		Samples:    samples,
		SampleRate: int(d.SampleRate),
		Channels:   channels,
		BitDepth:   depth,
	}, nil
}

// DecodeAt decodes data and resamples it to sampleRate.
func DecodeAt(data []byte, sampleRate int) (*Clip, error) {
	clip, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if clip.SampleRate == sampleRate {
		return clip, nil
	}
	out, err := resampler.Resample(clip.Samples, clip.SampleRate, sampleRate)
	if err != nil {
		return nil, err
	}
	clip.Samples = out
	clip.SampleRate = sampleRate
	return clip, nil
}

// Encode writes samples as a 16-bit mono PCM WAV file. Samples outside
// [-1, 1] are clipped.
func Encode(w io.Writer, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		data[i] = int(max(-32768, min(32767, v)))
	}

	var ws seekBuffer
	enc := gowav.NewEncoder(&ws, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav: encode: %w", err)
	}
	_, err := w.Write(ws.buf)
	return err
}

// EncodeBytes returns samples encoded by Encode.
func EncodeBytes(samples []float32, sampleRate int) ([]byte, error) {
	var b bytes.Buffer
	if err := Encode(&b, samples, sampleRate); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// seekBuffer is an in-memory io.WriteSeeker; the encoder seeks back to
// patch chunk sizes.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.buf))
	default:
		return 0, errors.New("wav: invalid whence")
	}
	pos := base + offset
	if pos < 0 {
		return 0, errors.New("wav: negative position")
	}
	s.pos = int(pos)
	return pos, nil
}
