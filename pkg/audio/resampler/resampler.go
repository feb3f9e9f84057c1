package resampler

import (
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts a mono stream from one sample rate to another. It keeps
// filter state between Process calls. It is safe for concurrent use, but
// chunks must be processed in order.
type Resampler struct {
	srcRate int
	dstRate int

	mu  sync.Mutex
	imp resampling.Resampler
	in  []float64
}

// New creates a Resampler from srcRate to dstRate Hz. Equal rates yield a
// pass-through Resampler.
func New(srcRate, dstRate int) (*Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid rates %d -> %d", srcRate, dstRate)
	}
	r := &Resampler{srcRate: srcRate, dstRate: dstRate}
	if srcRate == dstRate {
		return r, nil
	}
	imp, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: %w", err)
	}
	r.imp = imp
	return r, nil
}

// SourceRate returns the input sample rate.
func (r *Resampler) SourceRate() int { return r.srcRate }

// TargetRate returns the output sample rate.
func (r *Resampler) TargetRate() int { return r.dstRate }

// Process resamples the next chunk of the stream. The output may be shorter
// or longer than the rate ratio implies while the filter fills.
func (r *Resampler) Process(in []float32) ([]float32, error) {
	if r.imp == nil {
		return append([]float32(nil), in...), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.in = r.in[:0]
	for _, s := range in {
		r.in = append(r.in, float64(s))
	}
	out, err := r.imp.Process(r.in)
	if err != nil {
		return nil, fmt.Errorf("resampler: %w", err)
	}
	return toFloat32(out), nil
}

// Flush drains the samples still held in the filter. Call it once after the
// last Process call of a stream.
func (r *Resampler) Flush() ([]float32, error) {
	if r.imp == nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := r.imp.Flush()
	if err != nil {
		return nil, fmt.Errorf("resampler: flush: %w", err)
	}
	return toFloat32(out), nil
}

// Resample converts a complete clip. The result has
// round(len(in) * dstRate / srcRate) samples.
func Resample(in []float32, srcRate, dstRate int) ([]float32, error) {
	r, err := New(srcRate, dstRate)
	if err != nil {
		return nil, err
	}
	if r.imp == nil {
		return append([]float32(nil), in...), nil
	}
	want := int(math.Round(float64(len(in)) * float64(dstRate) / float64(srcRate)))

	out, err := r.Process(in)
	if err != nil {
		return nil, err
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, err
	}
	out = append(out, tail...)
	if len(out) >= want {
		return out[:want], nil
	}
	return append(out, make([]float32, want-len(out))...), nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s)
	}
	return out
}
