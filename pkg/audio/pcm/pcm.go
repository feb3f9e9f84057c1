package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Encoding is a sample encoding.
type Encoding string

const (
	S16LE Encoding = "s16le"
	F32LE Encoding = "f32le"
)

// ParseEncoding parses an encoding name. The empty string is S16LE.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case "", S16LE:
		return S16LE, nil
	case F32LE:
		return F32LE, nil
	}
	return "", fmt.Errorf("pcm: unknown encoding %q", s)
}

// SampleBytes returns the size of one sample in bytes.
func (e Encoding) SampleBytes() int {
	switch e {
	case S16LE:
		return 2
	case F32LE:
		return 4
	}
	panic("pcm: invalid encoding")
}

// Format is a mono PCM stream format.
type Format struct {
	Encoding   Encoding
	SampleRate int
}

// Samples returns the number of samples in the given number of bytes.
func (f Format) Samples(bytes int64) int64 {
	return bytes / int64(f.Encoding.SampleBytes())
}

// Duration returns the duration of the given number of bytes.
func (f Format) Duration(bytes int64) time.Duration {
	return time.Duration(f.Samples(bytes)) * time.Second / time.Duration(f.SampleRate)
}

// String returns a human-readable string representation of the format.
func (f Format) String() string {
	return fmt.Sprintf("%s; rate=%d; channels=1", f.Encoding, f.SampleRate)
}

// Decoder decodes a byte stream whose frames may split samples.
type Decoder struct {
	enc Encoding
	rem []byte
}

// NewDecoder creates a Decoder for enc.
func NewDecoder(enc Encoding) *Decoder {
	return &Decoder{enc: enc}
}

// Decode returns the samples completed by p. A trailing partial sample is
// kept for the next call.
func (d *Decoder) Decode(p []byte) []float32 {
	if len(d.rem) > 0 {
		p = append(d.rem, p...)
		d.rem = nil
	}
	size := d.enc.SampleBytes()
	n := len(p) / size
	if tail := p[n*size:]; len(tail) > 0 {
		d.rem = append([]byte(nil), tail...)
	}

	out := make([]float32, n)
	switch d.enc {
	case S16LE:
		for i := range out {
			out[i] = float32(int16(binary.LittleEndian.Uint16(p[i*2:]))) / 32768
		}
	case F32LE:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		}
	}
	return out
}

// Encode encodes samples. S16LE output clips to [-1, 1].
func Encode(enc Encoding, samples []float32) []byte {
	out := make([]byte, len(samples)*enc.SampleBytes())
	switch enc {
	case S16LE:
		for i, s := range samples {
			v := math.Round(float64(s) * 32768)
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(max(-32768, min(32767, v)))))
		}
	case F32LE:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
		}
	}
	return out
}
