package features

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Extractor computes feature vectors. It holds no mutable state and is safe
// for concurrent use.
type Extractor struct {
	cfg Config
}

// New creates an Extractor with the given config.
func New(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg}, nil
}

var defaultExtractor = &Extractor{cfg: DefaultConfig()}

// Extract computes the feature vector of samples with the default config.
func Extract(samples []float32, sampleRate int) ([]float64, error) {
	return defaultExtractor.Extract(samples, sampleRate)
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Dim returns the length of the vectors returned by Extract.
func (e *Extractor) Dim() int { return Dim(e.cfg) }

// Extract computes the feature vector of mono samples recorded at
// sampleRate. Audio that cannot produce a meaningful vector is reported as a
// *RejectedError.
func (e *Extractor) Extract(samples []float32, sampleRate int) (vec []float64, err error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("features: invalid sample rate %d", sampleRate)
	}
	defer func() {
		if r := recover(); r != nil {
			vec = nil
			err = reject(ErrNonFinite, "extraction failed: %v", r)
		}
	}()

	cfg := e.cfg
	sr := float64(sampleRate)
	if float64(len(samples)) < sr*cfg.MinDuration {
		return nil, reject(ErrTooShort, "%.3fs, need at least %.3fs", float64(len(samples))/sr, cfg.MinDuration)
	}

	y := make([]float64, len(samples))
	for i, s := range samples {
		y[i] = float64(s)
	}
	if !allFinite(y) {
		return nil, reject(ErrNonFinite, "input contains NaN or Inf samples")
	}

	nFFT, hop := cfg.FFTSize, cfg.HopLength
	rms := frameRMS(y, nFFT, hop)
	if m := stat.Mean(rms, nil); m < cfg.SilenceRMS {
		return nil, reject(ErrSilent, "mean RMS %.5f below %.5f", m, cfg.SilenceRMS)
	}
	if m := slices.Max(rms); m > cfg.ClipRMS {
		return nil, reject(ErrClipped, "peak RMS %.3f above %.3f", m, cfg.ClipRMS)
	}

	spec := stft(y, nFFT, hop, hann(nFFT))
	mag := spectrogram(spec, 1)
	power := spectrogram(spec, 2)
	freqs := fftFrequencies(sr, nFFT)

	cc := mfcc(power, sr, nFFT, cfg.NMels, cfg.NMFCC)
	d1, err := delta(cc, 1)
	if err != nil {
		return nil, err
	}
	d2, err := delta(cc, 2)
	if err != nil {
		return nil, err
	}

	centroid, bandwidth := spectralShape(mag, freqs)
	rolloff := spectralRolloff(mag, freqs, 0.85)
	zcr := zeroCrossingRate(y, nFFT, hop)

	chroma := chromaSTFT(power, sr, nFFT)
	contrast := spectralContrast(mag, freqs)

	tonal, err := tonnetz(y, sr, hop, mag, nFFT)
	if err != nil {
		return nil, err
	}

	f0 := yin(y, cfg.PitchFMin, cfg.PitchFMax, cfg.PitchSampleRate, nFFT, hop)
	if len(f0) == 0 {
		return nil, fmt.Errorf("features: pitch range [%g, %g] Hz does not fit a %d-sample frame", cfg.PitchFMin, cfg.PitchFMax, nFFT)
	}

	vec = make([]float64, 0, Dim(cfg))
	vec = appendRowStats(vec, cc)
	vec = appendRowStats(vec, d1)
	vec = appendRowStats(vec, d2)
	vec = appendSeriesStats(vec, centroid)
	vec = appendSeriesStats(vec, bandwidth)
	vec = appendSeriesStats(vec, rolloff)
	vec = appendSeriesStats(vec, zcr)
	vec = appendRowStats(vec, chroma)
	vec = appendRowStats(vec, contrast)
	vec = appendRowStats(vec, tonal)
	vec = appendSeriesStats(vec, rms)
	vec = appendSeriesStats(vec, f0)

	if len(vec) != Dim(cfg) {
		return nil, fmt.Errorf("features: produced %d values, want %d", len(vec), Dim(cfg))
	}
	if !allFinite(vec) {
		return nil, reject(ErrNonFinite, "feature vector contains NaN or Inf")
	}
	return vec, nil
}

// appendRowStats appends the mean of every row of m, then the population
// standard deviation of every row.
func appendRowStats(dst []float64, m *mat.Dense) []float64 {
	r, c := m.Dims()
	row := make([]float64, c)
	stds := make([]float64, r)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		mean, std := stat.PopMeanStdDev(row, nil)
		dst = append(dst, mean)
		stds[i] = std
	}
	return append(dst, stds...)
}

func appendSeriesStats(dst []float64, x []float64) []float64 {
	mean, std := stat.PopMeanStdDev(x, nil)
	return append(dst, mean, std)
}

func allFinite(x []float64) bool {
	return !floats.HasNaN(x) && !slices.ContainsFunc(x, func(v float64) bool { return math.IsInf(v, 0) })
}
