// Package modeltest builds small deterministic model artifacts for tests.
package modeltest

import (
	"math"

	"github.com/haivivi/voicemood/pkg/model"
)

// Artifacts returns a multinomial linear model over dim features that
// classifies into the RAVDESS emotion labels and reports probabilities.
func Artifacts(dim int) *model.Artifacts {
	labels := &model.LabelEncoder{Classes: append([]string(nil), model.RAVDESSLabels...)}
	lin := &model.Linear{
		Coef:       make([][]float64, len(labels.Classes)),
		Intercept:  make([]float64, len(labels.Classes)),
		MultiClass: model.Multinomial,
	}
	for k := range lin.Coef {
		row := make([]float64, dim)
		for i := range row {
			row[i] = math.Sin(float64((k+1)*(i+1))) / float64(dim)
		}
		lin.Coef[k] = row
		lin.Intercept[k] = 0.01 * float64(k)
	}
	scaler := &model.Scaler{Mean: make([]float64, dim), Scale: make([]float64, dim)}
	for i := range scaler.Scale {
		scaler.Scale[i] = 100
	}
	a, err := model.NewArtifacts(lin, scaler, labels, dim)
	if err != nil {
		panic(err)
	}
	return a
}

// Tone returns seconds of a sine at freq Hz with the given amplitude plus a
// few harmonics, sampled at sr.
func Tone(sr int, seconds, freq, amp float64) []float32 {
	n := int(float64(sr) * seconds)
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sr)
		v := math.Sin(2*math.Pi*freq*t) + 0.3*math.Sin(4*math.Pi*freq*t) + 0.1*math.Sin(6*math.Pi*freq*t)
		out[i] = float32(amp * v / 1.4)
	}
	return out
}
