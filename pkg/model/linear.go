package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Multi-class strategies for Linear.
const (
	OneVsRest   = "ovr"
	Multinomial = "multinomial"
)

// Linear is a logistic regression classifier.
//
// Coef has one row per class, or a single row for a binary problem in which
// case a positive score selects class 1.
type Linear struct {
	Coef       [][]float64 `msgpack:"coef"`
	Intercept  []float64   `msgpack:"intercept"`
	MultiClass string      `msgpack:"multi_class"`
}

func (l *Linear) NumClasses() int {
	if len(l.Coef) == 1 {
		return 2
	}
	return len(l.Coef)
}

func (l *Linear) NumFeatures() int {
	if len(l.Coef) == 0 {
		return 0
	}
	return len(l.Coef[0])
}

func (l *Linear) scores(x []float64) []float64 {
	s := make([]float64, len(l.Coef))
	for k, row := range l.Coef {
		s[k] = floats.Dot(row, x) + l.Intercept[k]
	}
	return s
}

func (l *Linear) Predict(x []float64) int {
	s := l.scores(x)
	if len(s) == 1 {
		if s[0] > 0 {
			return 1
		}
		return 0
	}
	return floats.MaxIdx(s)
}

func (l *Linear) Distribution(x []float64) []float64 {
	s := l.scores(x)
	if len(s) == 1 {
		if l.MultiClass == Multinomial {
			p := sigmoid(2 * s[0])
			return []float64{1 - p, p}
		}
		p := sigmoid(s[0])
		return []float64{1 - p, p}
	}
	if l.MultiClass == Multinomial {
		return softmax(s)
	}
	for k := range s {
		s[k] = sigmoid(s[k])
	}
	floats.Scale(1/floats.Sum(s), s)
	return s
}

func (l *Linear) validate() error {
	if len(l.Coef) == 0 {
		return errors.New("linear: no coefficients")
	}
	if len(l.Coef) == 2 {
		return errors.New("linear: binary models must use a single coefficient row")
	}
	if len(l.Intercept) != len(l.Coef) {
		return fmt.Errorf("linear: %d intercepts for %d coefficient rows", len(l.Intercept), len(l.Coef))
	}
	d := len(l.Coef[0])
	for k, row := range l.Coef {
		if len(row) != d {
			return fmt.Errorf("linear: coefficient row %d has %d values, want %d", k, len(row), d)
		}
	}
	switch l.MultiClass {
	case OneVsRest, Multinomial:
	default:
		return fmt.Errorf("linear: unknown multi_class %q", l.MultiClass)
	}
	return nil
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func softmax(s []float64) []float64 {
	out := make([]float64, len(s))
	m := floats.Max(s)
	var sum float64
	for i, v := range s {
		out[i] = math.Exp(v - m)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}
