package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tree is a binary decision tree in flat array form. Node 0 is the root.
// Internal nodes send x to Left when x[Feature] <= Threshold and to Right
// otherwise; leaves have Left == Right == -1 and carry an output in Value.
type Tree struct {
	Feature   []int       `msgpack:"feature"`
	Threshold []float64   `msgpack:"threshold"`
	Left      []int       `msgpack:"left"`
	Right     []int       `msgpack:"right"`
	Value     [][]float64 `msgpack:"value"`
}

func (t *Tree) leaf(x []float64) []float64 {
	n := 0
	for t.Left[n] >= 0 {
		if x[t.Feature[n]] <= t.Threshold[n] {
			n = t.Left[n]
		} else {
			n = t.Right[n]
		}
	}
	return t.Value[n]
}

// validate checks the tree shape. Children must follow their parent so that
// traversal terminates.
func (t *Tree) validate(features, outputs int) error {
	n := len(t.Left)
	if n == 0 {
		return errors.New("empty tree")
	}
	if len(t.Right) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return errors.New("ragged node arrays")
	}
	for i := 0; i < n; i++ {
		l, r := t.Left[i], t.Right[i]
		if l < 0 || r < 0 {
			if l != -1 || r != -1 {
				return fmt.Errorf("node %d: half leaf", i)
			}
			if len(t.Value[i]) != outputs {
				return fmt.Errorf("leaf %d has %d outputs, want %d", i, len(t.Value[i]), outputs)
			}
			continue
		}
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("node %d: child index out of range", i)
		}
		if f := t.Feature[i]; f < 0 || f >= features {
			return fmt.Errorf("node %d: feature %d out of range", i, f)
		}
	}
	return nil
}

// Forest is a random forest: the prediction averages the normalized class
// distributions of the leaves reached in every tree.
type Forest struct {
	Trees    []Tree `msgpack:"trees"`
	Classes  int    `msgpack:"classes"`
	Features int    `msgpack:"features"`
}

func (f *Forest) NumClasses() int  { return f.Classes }
func (f *Forest) NumFeatures() int { return f.Features }

func (f *Forest) Predict(x []float64) int {
	return floats.MaxIdx(f.Distribution(x))
}

func (f *Forest) Distribution(x []float64) []float64 {
	p := make([]float64, f.Classes)
	for i := range f.Trees {
		v := f.Trees[i].leaf(x)
		if s := floats.Sum(v); s > 0 {
			floats.AddScaled(p, 1/s, v)
		}
	}
	if s := floats.Sum(p); s > 0 {
		floats.Scale(1/s, p)
	}
	return p
}

func (f *Forest) validate() error {
	if f.Classes < 2 || f.Features <= 0 {
		return fmt.Errorf("forest: invalid shape %d classes x %d features", f.Classes, f.Features)
	}
	if len(f.Trees) == 0 {
		return errors.New("forest: no trees")
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.Features, f.Classes); err != nil {
			return fmt.Errorf("forest: tree %d: %w", i, err)
		}
	}
	return nil
}

// Boosted is a gradient-boosted tree ensemble. Trees are laid out round by
// round with one tree per output; tree i adds its leaf value to output
// i % len(InitScore). A single output is a binary model scored with the
// logistic function; otherwise outputs are class scores passed through
// softmax.
type Boosted struct {
	Trees     []Tree    `msgpack:"trees"`
	InitScore []float64 `msgpack:"init_score"`
	Classes   int       `msgpack:"classes"`
	Features  int       `msgpack:"features"`
}

func (b *Boosted) NumClasses() int  { return b.Classes }
func (b *Boosted) NumFeatures() int { return b.Features }

func (b *Boosted) raw(x []float64) []float64 {
	s := append([]float64(nil), b.InitScore...)
	for i := range b.Trees {
		s[i%len(s)] += b.Trees[i].leaf(x)[0]
	}
	return s
}

func (b *Boosted) Predict(x []float64) int {
	s := b.raw(x)
	if len(s) == 1 {
		if s[0] > 0 {
			return 1
		}
		return 0
	}
	return floats.MaxIdx(s)
}

func (b *Boosted) Distribution(x []float64) []float64 {
	s := b.raw(x)
	if len(s) == 1 {
		p := sigmoid(s[0])
		return []float64{1 - p, p}
	}
	return softmax(s)
}

func (b *Boosted) validate() error {
	if b.Classes < 2 || b.Features <= 0 {
		return fmt.Errorf("boosted: invalid shape %d classes x %d features", b.Classes, b.Features)
	}
	outputs := len(b.InitScore)
	switch {
	case outputs == 1 && b.Classes == 2:
	case outputs == b.Classes:
	default:
		return fmt.Errorf("boosted: %d init scores for %d classes", outputs, b.Classes)
	}
	if len(b.Trees) == 0 || len(b.Trees)%outputs != 0 {
		return fmt.Errorf("boosted: %d trees is not a whole number of rounds", len(b.Trees))
	}
	for i := range b.Trees {
		if err := b.Trees[i].validate(b.Features, 1); err != nil {
			return fmt.Errorf("boosted: tree %d: %w", i, err)
		}
	}
	return nil
}
