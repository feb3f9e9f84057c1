// Package features turns mono PCM audio into the fixed-length acoustic
// feature vector consumed by the emotion classifiers.
//
// The vector is the concatenation of per-frame statistics (mean, then
// population standard deviation) of the following frame-level features,
// in this order:
//
//	MFCC            40 coefficients       80
//	delta MFCC      40 coefficients       80
//	delta2 MFCC     40 coefficients       80
//	centroid, bandwidth, rolloff, ZCR      8
//	chroma (STFT)   12 bins               24
//	spectral contrast 7 bands             14
//	tonnetz         6 dimensions          12
//	RMS                                    2
//	F0 (YIN)                               2
//	                                     ---
//	                                     302
//
// All frame-level features share a 2048-sample frame, 512-sample hop and
// centered framing. The recipe is a contract with the training tooling; any
// change to it invalidates trained models.
package features

import (
	"errors"
	"fmt"
)

// Config controls feature extraction.
type Config struct {
	SampleRate  int     // expected input sample rate in Hz (default 48000)
	NMFCC       int     // number of cepstral coefficients (default 40)
	FFTSize     int     // STFT size and frame length (default 2048)
	HopLength   int     // frame hop (default 512)
	NMels       int     // mel bands feeding the MFCC (default 128)
	MinDuration float64 // shortest accepted clip in seconds (default 1.0)
	SilenceRMS  float64 // mean frame RMS below this is silence (default 0.005)
	ClipRMS     float64 // max frame RMS above this is clipping (default 0.95)

	PitchFMin       float64 // YIN search floor in Hz (default C2)
	PitchFMax       float64 // YIN search ceiling in Hz (default C7)
	PitchSampleRate float64 // rate YIN assumes for period conversion (default 22050)
}

// DefaultConfig returns the configuration the shipped models were trained with.
func DefaultConfig() Config {
	return Config{
		SampleRate:      48000,
		NMFCC:           40,
		FFTSize:         2048,
		HopLength:       512,
		NMels:           128,
		MinDuration:     1.0,
		SilenceRMS:      0.005,
		ClipRMS:         0.95,
		PitchFMin:       65.40639132514966,
		PitchFMax:       2093.004522404789,
		PitchSampleRate: 22050,
	}
}

// Fixed feature layout sizes that do not depend on Config.
const (
	numChroma   = 12
	numContrast = 7 // 6 octave bands plus the residual band
	numTonnetz  = 6
)

// Dim returns the length of the feature vector produced under cfg.
func Dim(cfg Config) int {
	return 2*3*cfg.NMFCC + 2*4 + 2*numChroma + 2*numContrast + 2*numTonnetz + 2 + 2
}

// Validate checks cfg for values extraction cannot work with.
func (cfg Config) Validate() error {
	switch {
	case cfg.SampleRate <= 0:
		return fmt.Errorf("features: sample rate must be positive, got %d", cfg.SampleRate)
	case cfg.NMFCC <= 0 || cfg.NMFCC > cfg.NMels:
		return fmt.Errorf("features: n_mfcc must be in [1, %d], got %d", cfg.NMels, cfg.NMFCC)
	case cfg.FFTSize <= 0 || cfg.FFTSize&(cfg.FFTSize-1) != 0:
		return fmt.Errorf("features: fft size must be a power of two, got %d", cfg.FFTSize)
	case cfg.HopLength <= 0:
		return fmt.Errorf("features: hop length must be positive, got %d", cfg.HopLength)
	case cfg.PitchFMin <= 0 || cfg.PitchFMax <= cfg.PitchFMin:
		return fmt.Errorf("features: invalid pitch range [%g, %g]", cfg.PitchFMin, cfg.PitchFMax)
	case cfg.PitchSampleRate <= 0:
		return fmt.Errorf("features: pitch sample rate must be positive, got %g", cfg.PitchSampleRate)
	case cfg.ClipRMS <= cfg.SilenceRMS:
		return errors.New("features: clip threshold must exceed silence threshold")
	}
	return nil
}

// Rejection reasons.
var (
	ErrTooShort  = errors.New("audio too short")
	ErrSilent    = errors.New("audio is silent")
	ErrClipped   = errors.New("audio is clipped")
	ErrNonFinite = errors.New("non-finite feature values")
)

// RejectedError reports audio that cannot yield a usable feature vector.
// Reason is one of the Err* sentinels above.
type RejectedError struct {
	Reason error
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return e.Reason.Error() + ": " + e.Detail
}

func (e *RejectedError) Unwrap() error { return e.Reason }

func reject(reason error, format string, args ...any) *RejectedError {
	return &RejectedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
