package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// SVM kernels.
const (
	KernelRBF    = "rbf"
	KernelLinear = "linear"
)

// SVM is a one-vs-one support vector classifier in libsvm layout.
//
// Support vectors are grouped by class, NSupport[c] of them for class c.
// DualCoef has K-1 rows; for the pair (i, j) with i < j the coefficients of
// class i's vectors come from row j-1 and those of class j's vectors from
// row i. Intercept holds one value per pair in (0,1), (0,2), ..., (K-2,K-1)
// order; a positive decision votes for i.
//
// ProbA and ProbB are optional Platt scaling parameters, one per pair. When
// present the classifier also reports class probabilities.
type SVM struct {
	Kernel         string      `msgpack:"kernel"`
	Gamma          float64     `msgpack:"gamma"`
	SupportVectors [][]float64 `msgpack:"support_vectors"`
	DualCoef       [][]float64 `msgpack:"dual_coef"`
	Intercept      []float64   `msgpack:"intercept"`
	NSupport       []int       `msgpack:"n_support"`
	ProbA          []float64   `msgpack:"prob_a,omitempty"`
	ProbB          []float64   `msgpack:"prob_b,omitempty"`
}

func (s *SVM) NumClasses() int { return len(s.NSupport) }

func (s *SVM) NumFeatures() int {
	if len(s.SupportVectors) == 0 {
		return 0
	}
	return len(s.SupportVectors[0])
}

func (s *SVM) hasProbability() bool {
	return len(s.ProbA) > 0 && len(s.ProbB) > 0
}

func (s *SVM) kernel(a, b []float64) float64 {
	if s.Kernel == KernelLinear {
		return floats.Dot(a, b)
	}
	var d float64
	for i := range a {
		v := a[i] - b[i]
		d += v * v
	}
	return math.Exp(-s.Gamma * d)
}

// decisions returns the pairwise decision values in pair order.
func (s *SVM) decisions(x []float64) []float64 {
	k := make([]float64, len(s.SupportVectors))
	for i, sv := range s.SupportVectors {
		k[i] = s.kernel(sv, x)
	}
	start := make([]int, len(s.NSupport))
	for c := 1; c < len(s.NSupport); c++ {
		start[c] = start[c-1] + s.NSupport[c-1]
	}

	nc := len(s.NSupport)
	dec := make([]float64, 0, nc*(nc-1)/2)
	p := 0
	for i := 0; i < nc; i++ {
		for j := i + 1; j < nc; j++ {
			var sum float64
			for m := start[i]; m < start[i]+s.NSupport[i]; m++ {
				sum += s.DualCoef[j-1][m] * k[m]
			}
			for m := start[j]; m < start[j]+s.NSupport[j]; m++ {
				sum += s.DualCoef[i][m] * k[m]
			}
			dec = append(dec, sum+s.Intercept[p])
			p++
		}
	}
	return dec
}

func (s *SVM) Predict(x []float64) int {
	dec := s.decisions(x)
	nc := len(s.NSupport)
	votes := make([]int, nc)
	p := 0
	for i := 0; i < nc; i++ {
		for j := i + 1; j < nc; j++ {
			if dec[p] > 0 {
				votes[i]++
			} else {
				votes[j]++
			}
			p++
		}
	}
	best := 0
	for c, v := range votes {
		if v > votes[best] {
			best = c
		}
	}
	return best
}

func (s *SVM) validate() error {
	nc := len(s.NSupport)
	if nc < 2 {
		return fmt.Errorf("svm: %d classes", nc)
	}
	switch s.Kernel {
	case KernelRBF:
		if !(s.Gamma > 0) {
			return fmt.Errorf("svm: rbf gamma must be positive, got %v", s.Gamma)
		}
	case KernelLinear:
	default:
		return fmt.Errorf("svm: unknown kernel %q", s.Kernel)
	}
	total := 0
	for c, n := range s.NSupport {
		if n < 0 {
			return fmt.Errorf("svm: negative support count for class %d", c)
		}
		total += n
	}
	if total != len(s.SupportVectors) {
		return fmt.Errorf("svm: support counts sum to %d, have %d vectors", total, len(s.SupportVectors))
	}
	if total == 0 {
		return errors.New("svm: no support vectors")
	}
	d := len(s.SupportVectors[0])
	for i, sv := range s.SupportVectors {
		if len(sv) != d {
			return fmt.Errorf("svm: support vector %d has %d values, want %d", i, len(sv), d)
		}
	}
	if len(s.DualCoef) != nc-1 {
		return fmt.Errorf("svm: %d dual coefficient rows for %d classes", len(s.DualCoef), nc)
	}
	for r, row := range s.DualCoef {
		if len(row) != total {
			return fmt.Errorf("svm: dual coefficient row %d has %d values, want %d", r, len(row), total)
		}
	}
	pairs := nc * (nc - 1) / 2
	if len(s.Intercept) != pairs {
		return fmt.Errorf("svm: %d intercepts for %d class pairs", len(s.Intercept), pairs)
	}
	if len(s.ProbA) != len(s.ProbB) || (len(s.ProbA) != 0 && len(s.ProbA) != pairs) {
		return fmt.Errorf("svm: probability parameters need %d values each", pairs)
	}
	return nil
}

// probSVM adds pairwise-coupled Platt probabilities to an SVM.
type probSVM struct {
	*SVM
}

func (s probSVM) Distribution(x []float64) []float64 {
	const minProb = 1e-7
	dec := s.decisions(x)
	nc := len(s.NSupport)
	r := make([][]float64, nc)
	for i := range r {
		r[i] = make([]float64, nc)
	}
	p := 0
	for i := 0; i < nc; i++ {
		for j := i + 1; j < nc; j++ {
			v := plattProbability(dec[p], s.ProbA[p], s.ProbB[p])
			v = math.Min(math.Max(v, minProb), 1-minProb)
			r[i][j] = v
			r[j][i] = 1 - v
			p++
		}
	}
	if nc == 2 {
		return []float64{r[0][1], r[1][0]}
	}
	return coupleProbabilities(r)
}

func plattProbability(dec, a, b float64) float64 {
	fApB := dec*a + b
	if fApB >= 0 {
		e := math.Exp(-fApB)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(fApB))
}

// coupleProbabilities solves for class probabilities consistent with the
// pairwise estimates r (Wu, Lin and Weng, method 2).
func coupleProbabilities(r [][]float64) []float64 {
	k := len(r)
	maxIter := max(100, k)
	eps := 0.005 / float64(k)

	q := make([][]float64, k)
	for t := range q {
		q[t] = make([]float64, k)
	}
	p := make([]float64, k)
	for t := 0; t < k; t++ {
		p[t] = 1 / float64(k)
		for j := 0; j < t; j++ {
			q[t][t] += r[j][t] * r[j][t]
			q[t][j] = q[j][t]
		}
		for j := t + 1; j < k; j++ {
			q[t][t] += r[j][t] * r[j][t]
			q[t][j] = -r[j][t] * r[t][j]
		}
	}

	qp := make([]float64, k)
	for iter := 0; iter < maxIter; iter++ {
		var pqp float64
		for t := 0; t < k; t++ {
			qp[t] = floats.Dot(q[t], p)
			pqp += p[t] * qp[t]
		}
		var maxErr float64
		for t := 0; t < k; t++ {
			maxErr = math.Max(maxErr, math.Abs(qp[t]-pqp))
		}
		if maxErr < eps {
			break
		}
		for t := 0; t < k; t++ {
			diff := (-qp[t] + pqp) / q[t][t]
			p[t] += diff
			pqp = (pqp + diff*(diff*q[t][t]+2*qp[t])) / (1 + diff) / (1 + diff)
			for j := 0; j < k; j++ {
				qp[j] = (qp[j] + diff*q[t][j]) / (1 + diff)
				p[j] /= 1 + diff
			}
		}
	}
	return p
}
