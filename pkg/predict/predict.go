// Package predict turns recorded audio into an emotion label using the
// feature extractor and the loaded model artifacts.
package predict

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/haivivi/voicemood/pkg/features"
	"github.com/haivivi/voicemood/pkg/model"
)

// ErrModelsNotLoaded is the reason of a PredictionFailed returned when no
// artifacts are available.
var ErrModelsNotLoaded = errors.New("models not loaded")

// PredictionFailed reports why a prediction could not be made.
type PredictionFailed struct {
	Reason string
	Err    error
}

func (e *PredictionFailed) Error() string { return e.Reason }

func (e *PredictionFailed) Unwrap() error { return e.Err }

func failed(err error, format string, args ...any) *PredictionFailed {
	return &PredictionFailed{Reason: fmt.Sprintf(format, args...), Err: err}
}

// Result is a successful prediction.
type Result struct {
	Emotion string `json:"emotion" yaml:"emotion"`
	// Probabilities is nil when the classifier has no distribution.
	Probabilities map[string]float64 `json:"probabilities,omitempty" yaml:"probabilities,omitempty"`
	// Duration of the audio in seconds.
	Duration float64 `json:"audio_duration" yaml:"audio_duration"`
}

// Predictor is safe for concurrent use.
type Predictor struct {
	extractor *features.Extractor
	artifacts atomic.Pointer[model.Artifacts]
	logger    *slog.Logger
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithExtractor sets the feature extractor. The default uses
// features.DefaultConfig.
func WithExtractor(e *features.Extractor) Option {
	return func(p *Predictor) {
		if e != nil {
			p.extractor = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Predictor. artifacts may be nil, in which case every
// prediction fails with ErrModelsNotLoaded.
func New(artifacts *model.Artifacts, opts ...Option) *Predictor {
	p := &Predictor{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.extractor == nil {
		e, err := features.New(features.DefaultConfig())
		if err != nil {
			panic(err)
		}
		p.extractor = e
	}
	if artifacts != nil {
		p.artifacts.Store(artifacts)
	}
	return p
}

// Loaded reports whether model artifacts are available.
func (p *Predictor) Loaded() bool { return p.artifacts.Load() != nil }

// Predict classifies mono samples recorded at sampleRate. Every failure is a
// *PredictionFailed.
func (p *Predictor) Predict(samples []float32, sampleRate int) (res *Result, err error) {
	a := p.artifacts.Load()
	if a == nil {
		return nil, failed(ErrModelsNotLoaded, "%v", ErrModelsNotLoaded)
	}

	vec, err := p.extractor.Extract(samples, sampleRate)
	if err != nil {
		var rej *features.RejectedError
		if errors.As(err, &rej) {
			return nil, failed(err, "unusable audio: %v", rej)
		}
		return nil, failed(err, "feature extraction: %v", err)
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("inference panic", "panic", r)
			res = nil
			err = failed(nil, "inference failed: %v", r)
		}
	}()

	x, err := a.Scaler.Transform(vec)
	if err != nil {
		return nil, failed(err, "%v", err)
	}
	id := a.Classifier.Predict(x)
	label, err := a.Labels.Label(id)
	if err != nil {
		return nil, failed(err, "%v", err)
	}

	res = &Result{
		Emotion:  label,
		Duration: float64(len(samples)) / float64(sampleRate),
	}
	if d, ok := a.Classifier.(model.Distributor); ok {
		dist := d.Distribution(x)
		if len(dist) != len(a.Labels.Classes) {
			return nil, failed(nil, "classifier returned %d probabilities for %d classes", len(dist), len(a.Labels.Classes))
		}
		res.Probabilities = make(map[string]float64, len(dist))
		for i, v := range dist {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, failed(nil, "classifier returned non-finite probability for %q", a.Labels.Classes[i])
			}
			res.Probabilities[a.Labels.Classes[i]] = v
		}
	}
	p.logger.Debug("prediction", "emotion", res.Emotion, "duration", res.Duration)
	return res, nil
}
