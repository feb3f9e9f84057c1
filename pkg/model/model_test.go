package model

import (
	"context"
	"errors"
	"math"
	"os"
	"slices"
	"testing"

	"github.com/haivivi/voicemood/pkg/storage"
	"github.com/vmihailenco/msgpack/v5"
)

func identityScaler(dim int) *Scaler {
	s := &Scaler{Mean: make([]float64, dim), Scale: make([]float64, dim)}
	for i := range s.Scale {
		s.Scale[i] = 1
	}
	return s
}

func threeClassSVM() *SVM {
	return &SVM{
		Kernel:         KernelLinear,
		SupportVectors: [][]float64{{1, 0}, {0, 1}, {-1, -1}},
		NSupport:       []int{1, 1, 1},
		DualCoef:       [][]float64{{1, -1, -1}, {1, 1, -1}},
		Intercept:      []float64{0, 0, 0},
	}
}

func stump(feature int, threshold float64, left, right []float64) Tree {
	return Tree{
		Feature:   []int{feature, -2, -2},
		Threshold: []float64{threshold, 0, 0},
		Left:      []int{1, -1, -1},
		Right:     []int{2, -1, -1},
		Value:     [][]float64{{0}, left, right},
	}
}

func sumOf(p []float64) float64 {
	var s float64
	for _, v := range p {
		s += v
	}
	return s
}

func TestSVMVoting(t *testing.T) {
	svm := threeClassSVM()
	if err := svm.validate(); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		x    []float64
		want int
	}{
		{[]float64{2, 0}, 0},
		{[]float64{0, 2}, 1},
		{[]float64{-2, -2}, 2},
	}
	for _, tt := range tests {
		if got := svm.Predict(tt.x); got != tt.want {
			t.Errorf("Predict(%v) = %d, want %d", tt.x, got, tt.want)
		}
	}
}

func TestSVMRBFKernel(t *testing.T) {
	svm := &SVM{Kernel: KernelRBF, Gamma: 0.5}
	if got := svm.kernel([]float64{1, 2}, []float64{1, 2}); got != 1 {
		t.Fatalf("k(x,x) = %v, want 1", got)
	}
	want := math.Exp(-0.5 * 2)
	if got := svm.kernel([]float64{0, 0}, []float64{1, 1}); math.Abs(got-want) > 1e-12 {
		t.Fatalf("k = %v, want %v", got, want)
	}
}

func TestSVMProbability(t *testing.T) {
	svm := threeClassSVM()
	svm.ProbA = []float64{-1, -1, -1}
	svm.ProbB = []float64{0, 0, 0}

	a, err := NewArtifacts(svm, identityScaler(2), &LabelEncoder{Classes: []string{"a", "b", "c"}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	d, ok := a.Classifier.(Distributor)
	if !ok {
		t.Fatal("svm with Platt parameters should report a distribution")
	}
	if a.Kind() != KindSVM {
		t.Fatalf("Kind = %q", a.Kind())
	}
	p := d.Distribution([]float64{2, 0})
	if len(p) != 3 {
		t.Fatalf("len = %d", len(p))
	}
	if s := sumOf(p); math.Abs(s-1) > 1e-3 {
		t.Fatalf("sum = %v", s)
	}
	if p[0] <= p[1] || p[0] <= p[2] {
		t.Fatalf("class 0 should dominate: %v", p)
	}
}

func TestSVMWithoutProbability(t *testing.T) {
	a, err := NewArtifacts(threeClassSVM(), identityScaler(2), &LabelEncoder{Classes: []string{"a", "b", "c"}}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Classifier.(Distributor); ok {
		t.Fatal("svm without Platt parameters must not report a distribution")
	}
}

func TestBinarySVMProbability(t *testing.T) {
	svm := &SVM{
		Kernel:         KernelLinear,
		SupportVectors: [][]float64{{1}, {-1}},
		NSupport:       []int{1, 1},
		DualCoef:       [][]float64{{1, -1}},
		Intercept:      []float64{0},
		ProbA:          []float64{-2},
		ProbB:          []float64{0},
	}
	if err := svm.validate(); err != nil {
		t.Fatal(err)
	}
	p := probSVM{svm}.Distribution([]float64{1})
	want := 1 / (1 + math.Exp(-4))
	if math.Abs(p[0]-want) > 1e-12 || math.Abs(p[0]+p[1]-1) > 1e-12 {
		t.Fatalf("p = %v, want [%v, %v]", p, want, 1-want)
	}
}

func TestLinear(t *testing.T) {
	for _, mc := range []string{OneVsRest, Multinomial} {
		t.Run(mc, func(t *testing.T) {
			l := &Linear{
				Coef:       [][]float64{{1, 0}, {0, 1}, {-1, -1}},
				Intercept:  []float64{0, 0, 0},
				MultiClass: mc,
			}
			if err := l.validate(); err != nil {
				t.Fatal(err)
			}
			x := []float64{3, 0}
			if got := l.Predict(x); got != 0 {
				t.Fatalf("Predict = %d", got)
			}
			p := l.Distribution(x)
			if s := sumOf(p); math.Abs(s-1) > 1e-9 {
				t.Fatalf("sum = %v", s)
			}
			if p[0] <= p[1] || p[0] <= p[2] {
				t.Fatalf("p = %v", p)
			}
		})
	}
}

func TestLinearBinary(t *testing.T) {
	l := &Linear{Coef: [][]float64{{1, 1}}, Intercept: []float64{-1}, MultiClass: OneVsRest}
	if l.NumClasses() != 2 {
		t.Fatalf("NumClasses = %d", l.NumClasses())
	}
	if got := l.Predict([]float64{1, 1}); got != 1 {
		t.Fatalf("Predict = %d", got)
	}
	if got := l.Predict([]float64{0, 0}); got != 0 {
		t.Fatalf("Predict = %d", got)
	}
	p := l.Distribution([]float64{1, 1})
	if want := 1 / (1 + math.Exp(-1)); math.Abs(p[1]-want) > 1e-12 {
		t.Fatalf("p = %v", p)
	}
}

func TestForest(t *testing.T) {
	f := &Forest{
		Trees: []Tree{
			stump(0, 0, []float64{3, 1}, []float64{0, 4}),
			stump(1, 0, []float64{1, 1}, []float64{0, 2}),
		},
		Classes:  2,
		Features: 2,
	}
	if err := f.validate(); err != nil {
		t.Fatal(err)
	}
	p := f.Distribution([]float64{-1, -1})
	// (0.75 + 0.5) / 2 for class 0.
	if math.Abs(p[0]-0.625) > 1e-12 || math.Abs(p[1]-0.375) > 1e-12 {
		t.Fatalf("p = %v", p)
	}
	if got := f.Predict([]float64{1, 1}); got != 1 {
		t.Fatalf("Predict = %d", got)
	}
}

func TestBoosted(t *testing.T) {
	b := &Boosted{
		Trees: []Tree{
			stump(0, 0, []float64{1}, []float64{-1}),
			stump(0, 0, []float64{-1}, []float64{1}),
		},
		InitScore: []float64{0, 0},
		Classes:   2,
		Features:  1,
	}
	if err := b.validate(); err != nil {
		t.Fatal(err)
	}
	if got := b.Predict([]float64{-1}); got != 0 {
		t.Fatalf("Predict(-1) = %d", got)
	}
	if got := b.Predict([]float64{1}); got != 1 {
		t.Fatalf("Predict(1) = %d", got)
	}
	p := b.Distribution([]float64{1})
	if math.Abs(sumOf(p)-1) > 1e-12 || p[1] <= p[0] {
		t.Fatalf("p = %v", p)
	}

	bin := &Boosted{
		Trees:     []Tree{stump(0, 0, []float64{-2}, []float64{2})},
		InitScore: []float64{0.5},
		Classes:   2,
		Features:  1,
	}
	if err := bin.validate(); err != nil {
		t.Fatal(err)
	}
	p = bin.Distribution([]float64{1})
	if want := 1 / (1 + math.Exp(-2.5)); math.Abs(p[1]-want) > 1e-12 {
		t.Fatalf("binary p = %v", p)
	}
}

func TestNewArtifactsValidation(t *testing.T) {
	labels := func(names ...string) *LabelEncoder { return &LabelEncoder{Classes: names} }
	badTree := stump(0, 0, []float64{1, 0}, []float64{0, 1})
	badTree.Left[0] = 0

	tests := []struct {
		name     string
		c        Classifier
		s        *Scaler
		l        *LabelEncoder
		artifact string
	}{
		{"scaler dim", threeClassSVM(), identityScaler(3), labels("a", "b", "c"), ScalerFile},
		{"zero scale", threeClassSVM(), &Scaler{Mean: []float64{0, 0}, Scale: []float64{1, 0}}, labels("a", "b", "c"), ScalerFile},
		{"nan mean", threeClassSVM(), &Scaler{Mean: []float64{math.NaN(), 0}, Scale: []float64{1, 1}}, labels("a", "b", "c"), ScalerFile},
		{"one class", threeClassSVM(), identityScaler(2), labels("a"), LabelsFile},
		{"duplicate class", threeClassSVM(), identityScaler(2), labels("a", "b", "a"), LabelsFile},
		{"class count", threeClassSVM(), identityScaler(2), labels("a", "b"), ClassifierFile},
		{"feature count", &Linear{Coef: [][]float64{{1, 2, 3}}, Intercept: []float64{0}, MultiClass: OneVsRest}, identityScaler(2), labels("a", "b"), ClassifierFile},
		{"support count", &SVM{Kernel: KernelLinear, SupportVectors: [][]float64{{1, 0}}, NSupport: []int{1, 1}, DualCoef: [][]float64{{1}}, Intercept: []float64{0}}, identityScaler(2), labels("a", "b"), ClassifierFile},
		{"tree cycle", &Forest{Trees: []Tree{badTree}, Classes: 2, Features: 2}, identityScaler(2), labels("a", "b"), ClassifierFile},
		{"ragged coef", &Linear{Coef: [][]float64{{1, 0}, {0}, {1, 1}}, Intercept: []float64{0, 0, 0}, MultiClass: Multinomial}, identityScaler(2), labels("a", "b", "c"), ClassifierFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewArtifacts(tt.c, tt.s, tt.l, 2)
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("err = %v, want *LoadError", err)
			}
			if le.Artifact != tt.artifact {
				t.Fatalf("artifact = %q, want %q (%v)", le.Artifact, tt.artifact, err)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	probSVM := threeClassSVM()
	probSVM.ProbA = []float64{-1, -1, -1}
	probSVM.ProbB = []float64{0, 0, 0}
	classifiers := []Classifier{
		&Linear{Coef: [][]float64{{1, 0}, {0, 1}, {-1, -1}}, Intercept: []float64{0, 0.1, 0}, MultiClass: Multinomial},
		&Forest{Trees: []Tree{stump(0, 0, []float64{1, 0, 0}, []float64{0, 1, 2})}, Classes: 3, Features: 2},
		&Boosted{Trees: []Tree{stump(0, 0, []float64{1}, []float64{0}), stump(1, 0, []float64{0}, []float64{1}), stump(0, 1, []float64{0}, []float64{2})}, InitScore: []float64{0, 0, 0}, Classes: 3, Features: 2},
		probSVM,
	}
	inputs := [][]float64{{2, 0}, {0, 2}, {-2, -2}, {0.5, 3}}

	for _, c := range classifiers {
		store := storage.NewMemory()
		a, err := NewArtifacts(c, &Scaler{Mean: []float64{0.5, -0.5}, Scale: []float64{2, 0.5}}, &LabelEncoder{Classes: []string{"angry", "calm", "happy"}}, 2)
		if err != nil {
			t.Fatal(err)
		}
		t.Run(a.Kind(), func(t *testing.T) {
			if err := Save(ctx, store, a); err != nil {
				t.Fatal(err)
			}
			b, err := Load(ctx, store, 2)
			if err != nil {
				t.Fatal(err)
			}
			if b.Kind() != a.Kind() {
				t.Fatalf("kind %q != %q", b.Kind(), a.Kind())
			}
			if !slices.Equal(b.Labels.Classes, a.Labels.Classes) || !slices.Equal(b.Scaler.Scale, a.Scaler.Scale) {
				t.Fatal("scaler or labels changed")
			}
			for _, x := range inputs {
				if got, want := b.Classifier.Predict(x), a.Classifier.Predict(x); got != want {
					t.Fatalf("Predict(%v) = %d after load, want %d", x, got, want)
				}
			}
			_, da := a.Classifier.(Distributor)
			_, db := b.Classifier.(Distributor)
			if da != db {
				t.Fatal("distribution support changed across save/load")
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		_, err := Load(ctx, storage.NewMemory(), 2)
		var le *LoadError
		if !errors.As(err, &le) || le.Artifact != ClassifierFile {
			t.Fatalf("err = %v", err)
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("err = %v, want ErrNotExist", err)
		}
	})

	t.Run("undecodable", func(t *testing.T) {
		store := storage.NewMemory()
		if err := storage.WriteFile(ctx, store, ClassifierFile, []byte("not msgpack at all")); err != nil {
			t.Fatal(err)
		}
		var le *LoadError
		if _, err := Load(ctx, store, 2); !errors.As(err, &le) || le.Artifact != ClassifierFile {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		store := storage.NewMemory()
		data, err := msgpack.Marshal(map[string]any{"kind": "knn"})
		if err != nil {
			t.Fatal(err)
		}
		if err := storage.WriteFile(ctx, store, ClassifierFile, data); err != nil {
			t.Fatal(err)
		}
		var le *LoadError
		if _, err := Load(ctx, store, 2); !errors.As(err, &le) || le.Artifact != ClassifierFile {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("missing scaler", func(t *testing.T) {
		store := storage.NewMemory()
		a, err := NewArtifacts(threeClassSVM(), identityScaler(2), &LabelEncoder{Classes: []string{"a", "b", "c"}}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if err := Save(ctx, store, a); err != nil {
			t.Fatal(err)
		}
		if err := store.Delete(ctx, ScalerFile); err != nil {
			t.Fatal(err)
		}
		var le *LoadError
		if _, err := Load(ctx, store, 2); !errors.As(err, &le) || le.Artifact != ScalerFile {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestLabelEncoder(t *testing.T) {
	want := []string{"angry", "calm", "disgust", "fearful", "happy", "neutral", "sad", "surprised"}
	if !slices.Equal(RAVDESSLabels, want) {
		t.Fatalf("RAVDESSLabels = %v", RAVDESSLabels)
	}
	l := &LabelEncoder{Classes: RAVDESSLabels}
	if got, err := l.Label(4); err != nil || got != "happy" {
		t.Fatalf("Label(4) = %q, %v", got, err)
	}
	if _, err := l.Label(8); err == nil {
		t.Fatal("Label(8) should fail")
	}
}
