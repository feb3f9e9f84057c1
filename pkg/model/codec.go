package model

import (
	"context"
	"fmt"

	"github.com/haivivi/voicemood/pkg/storage"
	"github.com/vmihailenco/msgpack/v5"
)

// Classifier kinds stored in the envelope.
const (
	KindLinear  = "linear"
	KindForest  = "forest"
	KindBoosted = "boosted"
	KindSVM     = "svm"
)

type envelope struct {
	Kind    string   `msgpack:"kind"`
	Linear  *Linear  `msgpack:"linear,omitempty"`
	Forest  *Forest  `msgpack:"forest,omitempty"`
	Boosted *Boosted `msgpack:"boosted,omitempty"`
	SVM     *SVM     `msgpack:"svm,omitempty"`
}

func (e *envelope) classifier() (Classifier, error) {
	var c Classifier
	switch e.Kind {
	case KindLinear:
		if e.Linear != nil {
			c = e.Linear
		}
	case KindForest:
		if e.Forest != nil {
			c = e.Forest
		}
	case KindBoosted:
		if e.Boosted != nil {
			c = e.Boosted
		}
	case KindSVM:
		if e.SVM != nil {
			c = e.SVM
		}
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", e.Kind)
	}
	if c == nil {
		return nil, fmt.Errorf("envelope of kind %q has no %s body", e.Kind, e.Kind)
	}
	return c, nil
}

func kindOf(c Classifier) string {
	switch c := c.(type) {
	case *Linear:
		return KindLinear
	case *Forest:
		return KindForest
	case *Boosted:
		return KindBoosted
	case *SVM:
		return KindSVM
	case probSVM:
		return kindOf(c.SVM)
	}
	return fmt.Sprintf("%T", c)
}

// Load reads and validates the artifacts in store against the feature
// dimension dim. Every failure is a *LoadError.
func Load(ctx context.Context, store storage.FileStore, dim int) (*Artifacts, error) {
	var env envelope
	if err := readArtifact(ctx, store, ClassifierFile, &env); err != nil {
		return nil, err
	}
	c, err := env.classifier()
	if err != nil {
		return nil, &LoadError{Artifact: ClassifierFile, Err: err}
	}

	var scaler Scaler
	if err := readArtifact(ctx, store, ScalerFile, &scaler); err != nil {
		return nil, err
	}
	var labels LabelEncoder
	if err := readArtifact(ctx, store, LabelsFile, &labels); err != nil {
		return nil, err
	}
	return NewArtifacts(c, &scaler, &labels, dim)
}

func readArtifact(ctx context.Context, store storage.FileStore, name string, v any) error {
	data, err := storage.ReadFile(ctx, store, name)
	if err != nil {
		return &LoadError{Artifact: name, Err: err}
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return &LoadError{Artifact: name, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// Save writes the artifacts to store under the fixed artifact names.
func Save(ctx context.Context, store storage.FileStore, a *Artifacts) error {
	c := a.Classifier
	if p, ok := c.(probSVM); ok {
		c = p.SVM
	}
	env := envelope{Kind: kindOf(c)}
	switch c := c.(type) {
	case *Linear:
		env.Linear = c
	case *Forest:
		env.Forest = c
	case *Boosted:
		env.Boosted = c
	case *SVM:
		env.SVM = c
	default:
		return fmt.Errorf("model: cannot save classifier of type %T", c)
	}

	parts := []struct {
		name string
		v    any
	}{
		{ClassifierFile, &env},
		{ScalerFile, a.Scaler},
		{LabelsFile, a.Labels},
	}
	for _, p := range parts {
		data, err := msgpack.Marshal(p.v)
		if err != nil {
			return fmt.Errorf("model: encode %s: %w", p.name, err)
		}
		if err := storage.WriteFile(ctx, store, p.name, data); err != nil {
			return fmt.Errorf("model: save %s: %w", p.name, err)
		}
	}
	return nil
}
