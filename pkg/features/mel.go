package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27

func hzToMel(f float64) float64 {
	if f >= melMinLogHz {
		return melMinLogMel + math.Log(f/melMinLogHz)/melLogStep
	}
	return f / melFSp
}

func melToHz(m float64) float64 {
	if m >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(m-melMinLogMel))
	}
	return melFSp * m
}

// melFilterBank returns nMels triangular filters spanning 0..sr/2 with
// Slaney area normalization, as an nMels x (nFFT/2+1) matrix.
func melFilterBank(sr float64, nFFT, nMels int) *mat.Dense {
	fftFreqs := fftFrequencies(sr, nFFT)
	nBins := len(fftFreqs)

	lo, hi := hzToMel(0), hzToMel(sr/2)
	melF := make([]float64, nMels+2)
	for i := range melF {
		melF[i] = melToHz(lo + (hi-lo)*float64(i)/float64(nMels+1))
	}

	w := mat.NewDense(nMels, nBins, nil)
	for i := 0; i < nMels; i++ {
		fdiffLo := melF[i+1] - melF[i]
		fdiffHi := melF[i+2] - melF[i+1]
		enorm := 2 / (melF[i+2] - melF[i])
		for k, f := range fftFreqs {
			lower := (f - melF[i]) / fdiffLo
			upper := (melF[i+2] - f) / fdiffHi
			v := math.Max(0, math.Min(lower, upper))
			if v != 0 {
				w.Set(i, k, v*enorm)
			}
		}
	}
	return w
}

const (
	dbAmin  = 1e-10
	dbTopDB = 80.0
)

// powerToDB converts a power matrix to decibels (reference 1.0) and clamps
// the result to within 80 dB of its maximum.
func powerToDB(s *mat.Dense) *mat.Dense {
	r, c := s.Dims()
	out := mat.NewDense(r, c, nil)
	peak := math.Inf(-1)
	out.Apply(func(_, _ int, v float64) float64 {
		db := 10 * math.Log10(math.Max(dbAmin, v))
		if db > peak {
			peak = db
		}
		return db
	}, s)
	floor := peak - dbTopDB
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, floor)
	}, out)
	return out
}

// dctMatrix returns the first n rows of the orthonormal DCT-II matrix for
// inputs of length m.
func dctMatrix(n, m int) *mat.Dense {
	d := mat.NewDense(n, m, nil)
	for k := 0; k < n; k++ {
		scale := math.Sqrt(2 / float64(m))
		if k == 0 {
			scale = math.Sqrt(1 / float64(m))
		}
		for j := 0; j < m; j++ {
			d.Set(k, j, scale*math.Cos(math.Pi*float64(k)*float64(2*j+1)/float64(2*m)))
		}
	}
	return d
}

// mfcc computes nMFCC cepstral coefficients per frame from a power
// spectrogram.
func mfcc(power *mat.Dense, sr float64, nFFT, nMels, nMFCC int) *mat.Dense {
	basis := melFilterBank(sr, nFFT, nMels)
	var mel mat.Dense
	mel.Mul(basis, power)
	logMel := powerToDB(&mel)
	var out mat.Dense
	out.Mul(dctMatrix(nMFCC, nMels), logMel)
	return &out
}
