package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// cqToChroma folds 36-per-octave constant-Q bins starting at C into 12
// pitch classes. Each class collects its center bin and the bins on either
// side of it.
func cqToChroma(nInput int) *mat.Dense {
	const merge = cqtBinsPerOctave / numChroma
	m := mat.NewDense(numChroma, nInput, nil)
	for j := 0; j < nInput; j++ {
		c := ((j%cqtBinsPerOctave + merge/2) % cqtBinsPerOctave) / merge
		m.Set(c, j, 1)
	}
	return m
}

// tonnetzBasis projects 12-bin chroma onto the circle of fifths, minor
// thirds and major thirds (a sine and a cosine coordinate for each).
func tonnetzBasis() *mat.Dense {
	scale := [numTonnetz]float64{7.0 / 6, 7.0 / 6, 3.0 / 2, 3.0 / 2, 2.0 / 3, 2.0 / 3}
	radius := [numTonnetz]float64{1, 1, 1, 1, 0.5, 0.5}
	phi := mat.NewDense(numTonnetz, numChroma, nil)
	for r := 0; r < numTonnetz; r++ {
		for c := 0; c < numChroma; c++ {
			v := scale[r] * float64(c)
			if r%2 == 0 {
				v -= 0.5
			}
			phi.Set(r, c, radius[r]*math.Cos(math.Pi*v))
		}
	}
	return phi
}

// tonnetz returns the 6 x frames tonal centroid features of y.
func tonnetz(y []float64, sr float64, hop int, magSTFT *mat.Dense, nFFT int) (*mat.Dense, error) {
	tuning := estimateTuning(magSTFT, sr, nFFT, cqtBinsPerOctave)
	c, err := cqtMagnitude(y, sr, hop, tuning)
	if err != nil {
		return nil, err
	}
	var chroma mat.Dense
	chroma.Mul(cqToChroma(cqtBins), c)
	normalizeColumnsMax(&chroma)
	normalizeColumnsL1(&chroma)

	var out mat.Dense
	out.Mul(tonnetzBasis(), &chroma)
	return &out, nil
}
