// Package model holds the trained emotion classifier and its preprocessing
// artifacts, and loads them from a storage.FileStore.
//
// A model directory contains three msgpack files:
//
//	best_model.msgpack     classifier envelope {kind, linear|forest|boosted|svm}
//	scaler.msgpack         per-feature mean and scale
//	label_encoder.msgpack  ordered class names; class id = index
//
// Artifacts are validated against each other and against the feature
// dimension at load time, then shared read-only.
package model

import (
	"errors"
	"fmt"
	"slices"
)

// Artifact file names.
const (
	ClassifierFile = "best_model.msgpack"
	ScalerFile     = "scaler.msgpack"
	LabelsFile     = "label_encoder.msgpack"
)

// Classifier maps a scaled feature vector to a class id.
type Classifier interface {
	Predict(x []float64) int
	NumClasses() int
	NumFeatures() int
}

// Distributor is implemented by classifiers that can report a probability
// for every class. The returned slice has NumClasses entries summing to 1.
type Distributor interface {
	Distribution(x []float64) []float64
}

// validator is implemented by every built-in classifier.
type validator interface {
	validate() error
}

// Artifacts is the immutable bundle used for inference.
type Artifacts struct {
	Classifier Classifier
	Scaler     *Scaler
	Labels     *LabelEncoder
}

// NewArtifacts validates the three parts against each other and against the
// feature dimension dim.
func NewArtifacts(c Classifier, s *Scaler, l *LabelEncoder, dim int) (*Artifacts, error) {
	if c == nil || s == nil || l == nil {
		return nil, errors.New("model: classifier, scaler and labels are all required")
	}
	if err := s.validate(dim); err != nil {
		return nil, &LoadError{Artifact: ScalerFile, Err: err}
	}
	if err := l.validate(); err != nil {
		return nil, &LoadError{Artifact: LabelsFile, Err: err}
	}
	if v, ok := c.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, &LoadError{Artifact: ClassifierFile, Err: err}
		}
	}
	if c.NumFeatures() != dim {
		return nil, &LoadError{Artifact: ClassifierFile, Err: fmt.Errorf("expects %d features, extractor produces %d", c.NumFeatures(), dim)}
	}
	if c.NumClasses() != len(l.Classes) {
		return nil, &LoadError{Artifact: ClassifierFile, Err: fmt.Errorf("has %d classes, label encoder has %d", c.NumClasses(), len(l.Classes))}
	}
	if svm, ok := c.(*SVM); ok && svm.hasProbability() {
		c = probSVM{svm}
	}
	return &Artifacts{Classifier: c, Scaler: s, Labels: l}, nil
}

// Dim returns the feature dimension the artifacts accept.
func (a *Artifacts) Dim() int { return len(a.Scaler.Mean) }

// Kind returns the classifier kind name.
func (a *Artifacts) Kind() string { return kindOf(a.Classifier) }

// LoadError reports a missing, unreadable or incompatible artifact.
type LoadError struct {
	Artifact string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("model: %s: %v", e.Artifact, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LabelEncoder maps class ids to class names.
type LabelEncoder struct {
	Classes []string `msgpack:"classes" json:"classes"`
}

// Label returns the name of class id.
func (l *LabelEncoder) Label(id int) (string, error) {
	if id < 0 || id >= len(l.Classes) {
		return "", fmt.Errorf("model: class id %d out of range [0, %d)", id, len(l.Classes))
	}
	return l.Classes[id], nil
}

func (l *LabelEncoder) validate() error {
	if len(l.Classes) < 2 {
		return fmt.Errorf("need at least 2 classes, got %d", len(l.Classes))
	}
	seen := make(map[string]bool, len(l.Classes))
	for _, c := range l.Classes {
		if c == "" {
			return errors.New("empty class name")
		}
		if seen[c] {
			return fmt.Errorf("duplicate class %q", c)
		}
		seen[c] = true
	}
	return nil
}

// RAVDESSLabels are the emotion classes of the RAVDESS corpus in sorted
// order, as produced by fitting a label encoder on its emotion names.
var RAVDESSLabels = func() []string {
	l := []string{"neutral", "calm", "happy", "sad", "angry", "fearful", "disgust", "surprised"}
	slices.Sort(l)
	return l
}()
