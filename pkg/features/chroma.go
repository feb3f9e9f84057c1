package features

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// float32 smallest normal, used as a divide-by-zero guard.
const tiny32 = 1.1754944e-38

// tiny64 is the smallest normal float64.
const tiny64 = 2.2250738585072014e-308

// hzToOcts converts frequencies to octave numbers relative to A0 (27.5 Hz
// at zero tuning). tuning is a fraction of a bin at bpo bins per octave.
func hzToOcts(f, tuning float64, bpo int) float64 {
	a440 := 440 * math.Pow(2, tuning/float64(bpo))
	return math.Log2(f / (a440 / 16))
}

// pickPitches returns the interpolated frequencies of spectral peaks between
// 150 and 4000 Hz whose magnitude exceeds a tenth of the frame maximum,
// together with their interpolated magnitudes.
func pickPitches(s *mat.Dense, sr float64, nFFT int) (pitches, mags []float64) {
	const (
		fmin      = 150.0
		fmax      = 4000.0
		threshold = 0.1
	)
	nb, nf := s.Dims()
	freqs := fftFrequencies(sr, nFFT)
	hi := math.Min(fmax, sr/2)

	col := make([]float64, nb)
	masked := make([]float64, nb)
	for t := 0; t < nf; t++ {
		mat.Col(col, t, s)
		ref := threshold * slices.Max(col)
		for k, v := range col {
			if v > ref {
				masked[k] = v
			} else {
				masked[k] = 0
			}
		}
		for k := 1; k < nb-1; k++ {
			if freqs[k] < fmin || freqs[k] >= hi {
				continue
			}
			// Local maximum on the thresholded spectrum.
			if !(masked[k] > masked[k-1] && masked[k] >= masked[k+1]) {
				continue
			}
			avg := 0.5 * (col[k+1] - col[k-1])
			den := 2*col[k] - col[k+1] - col[k-1]
			if math.Abs(den) < tiny64 {
				den++
			}
			shift := avg / den
			pitches = append(pitches, (float64(k)+shift)*sr/float64(nFFT))
			mags = append(mags, col[k]+0.5*avg*shift)
		}
	}
	return pitches, mags
}

// estimateTuning estimates the deviation of the recording from A440 tuning,
// in fractions of a bin at bpo bins per octave, from the spectrogram s.
func estimateTuning(s *mat.Dense, sr float64, nFFT, bpo int) float64 {
	pitches, mags := pickPitches(s, sr, nFFT)
	var voiced []float64
	for i, p := range pitches {
		if p > 0 {
			voiced = append(voiced, mags[i])
		}
	}
	var keep float64
	if len(voiced) > 0 {
		keep = median(voiced)
	}
	var selected []float64
	for i, p := range pitches {
		if p > 0 && mags[i] >= keep {
			selected = append(selected, p)
		}
	}
	return pitchTuning(selected, 0.01, bpo)
}

// pitchTuning returns the most common sub-bin deviation of freqs, quantized
// to resolution, in [-0.5, 0.5).
func pitchTuning(freqs []float64, resolution float64, bpo int) float64 {
	var residual []float64
	for _, f := range freqs {
		if f <= 0 {
			continue
		}
		r := math.Mod(float64(bpo)*hzToOcts(f, 0, bpo), 1)
		if r < 0 {
			r++
		}
		if r >= 0.5 {
			r--
		}
		residual = append(residual, r)
	}
	if len(residual) == 0 {
		return 0
	}

	nBins := int(math.Ceil(1 / resolution))
	edges := make([]float64, nBins+1)
	step := 1 / float64(nBins)
	for i := range edges {
		edges[i] = -0.5 + float64(i)*step
	}
	edges[nBins] = 0.5

	counts := make([]int, nBins)
	for _, r := range residual {
		if r < edges[0] || r > edges[nBins] {
			continue
		}
		i := int((r - edges[0]) * float64(nBins))
		if i >= nBins {
			i = nBins - 1
		}
		if r < edges[i] {
			i--
		} else if i < nBins-1 && r >= edges[i+1] {
			i++
		}
		counts[i]++
	}
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return edges[best]
}

func median(x []float64) float64 {
	s := slices.Clone(x)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}

// floorMod is the remainder of a/b with the sign of b.
func floorMod(a, b float64) float64 {
	return a - b*math.Floor(a/b)
}

// chromaFilterBank returns the 12 x (nFFT/2+1) Gaussian chroma filter bank,
// rows starting at C, centered on octave 5 with a two-octave spread.
func chromaFilterBank(sr float64, nFFT int, tuning float64) *mat.Dense {
	const (
		ctroct   = 5.0
		octwidth = 2.0
	)
	n := numChroma

	frqbins := make([]float64, nFFT)
	for k := 1; k < nFFT; k++ {
		f := float64(k) * sr / float64(nFFT)
		frqbins[k] = float64(n) * hzToOcts(f, tuning, n)
	}
	frqbins[0] = frqbins[1] - 1.5*float64(n)

	binwidth := make([]float64, nFFT)
	for k := 0; k < nFFT-1; k++ {
		binwidth[k] = math.Max(frqbins[k+1]-frqbins[k], 1)
	}
	binwidth[nFFT-1] = 1

	half := math.Round(float64(n) / 2)
	wts := make([][]float64, n)
	for c := range wts {
		wts[c] = make([]float64, nFFT)
	}
	for k := 0; k < nFFT; k++ {
		var norm float64
		for c := 0; c < n; c++ {
			d := floorMod(frqbins[k]-float64(c)+half+10*float64(n), float64(n)) - half
			v := math.Exp(-0.5 * math.Pow(2*d/binwidth[k], 2))
			wts[c][k] = v
			norm += v * v
		}
		norm = math.Sqrt(norm)
		oct := math.Exp(-0.5 * math.Pow((frqbins[k]/float64(n)-ctroct)/octwidth, 2))
		for c := 0; c < n; c++ {
			if norm >= tiny64 {
				wts[c][k] /= norm
			}
			wts[c][k] *= oct
		}
	}

	nb := nFFT/2 + 1
	out := mat.NewDense(n, nb, nil)
	for c := 0; c < n; c++ {
		// Rotate so that row 0 is C rather than A.
		src := wts[(c+3)%n]
		for k := 0; k < nb; k++ {
			out.Set(c, k, src[k])
		}
	}
	return out
}

// normalizeColumnsMax scales every column of m by its maximum absolute
// value. All-zero columns are left untouched.
func normalizeColumnsMax(m *mat.Dense) {
	r, c := m.Dims()
	for t := 0; t < c; t++ {
		var peak float64
		for i := 0; i < r; i++ {
			peak = math.Max(peak, math.Abs(m.At(i, t)))
		}
		if peak < tiny64 {
			continue
		}
		for i := 0; i < r; i++ {
			m.Set(i, t, m.At(i, t)/peak)
		}
	}
}

// normalizeColumnsL1 scales every column of m to unit L1 norm.
func normalizeColumnsL1(m *mat.Dense) {
	r, c := m.Dims()
	for t := 0; t < c; t++ {
		var sum float64
		for i := 0; i < r; i++ {
			sum += math.Abs(m.At(i, t))
		}
		if sum < tiny64 {
			continue
		}
		for i := 0; i < r; i++ {
			m.Set(i, t, m.At(i, t)/sum)
		}
	}
}

// chromaSTFT projects a power spectrogram onto 12 pitch classes.
func chromaSTFT(power *mat.Dense, sr float64, nFFT int) *mat.Dense {
	tuning := estimateTuning(power, sr, nFFT, numChroma)
	var out mat.Dense
	out.Mul(chromaFilterBank(sr, nFFT, tuning), power)
	normalizeColumnsMax(&out)
	return &out
}
