package features

import (
	"errors"
	"math"
	"math/cmplx"
	"slices"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// Constant-Q transform parameters used for tonnetz.
const (
	cqtBinsPerOctave = 36
	cqtOctaves       = 7
	cqtBins          = cqtBinsPerOctave * cqtOctaves
	cqtSparsity      = 0.01

	noteC1 = 32.70319566257483

	// Equivalent noise bandwidth of the Hann window, in bins.
	hannBandwidth = 1.50018310546875
)

var errCQTNyquist = errors.New("features: constant-Q filters exceed the Nyquist frequency")

// cqtAlpha is the relative bandwidth of filters spaced bpo per octave.
func cqtAlpha(bpo int) float64 {
	r := math.Pow(2, 1/float64(bpo))
	return (r*r - 1) / (r*r + 1)
}

// cqFilter is one sparse frequency-domain constant-Q filter.
type cqFilter struct {
	bins []int
	vals []complex128
}

// cqtMagnitude returns |CQT| of y over 7 octaves from C1 (shifted by tuning,
// in fractions of a 36-per-octave bin) as a 252 x frames matrix. Octaves are
// computed from the top down, halving the signal rate between octaves.
func cqtMagnitude(y []float64, sr float64, hop int, tuning float64) (*mat.Dense, error) {
	fmin := noteC1 * math.Pow(2, tuning/cqtBinsPerOctave)
	freqs := make([]float64, cqtBins)
	for k := range freqs {
		freqs[k] = fmin * math.Pow(2, float64(k)/cqtBinsPerOctave)
	}
	alpha := cqtAlpha(cqtBinsPerOctave)
	q := 1 / alpha

	cutoff := freqs[cqtBins-1] * (1 + 0.5*hannBandwidth/q)
	nyquist := sr / 2
	if cutoff > nyquist {
		return nil, errCQTNyquist
	}

	// Decimate up front as far as the top filter and the hop allow.
	count1 := max(0, int(math.Ceil(math.Log2(nyquist/cutoff)))-1-1)
	count2 := max(0, twoFactors(hop)-cqtOctaves+1)
	for range min(count1, count2) {
		if len(y) < 2 {
			return nil, reject(ErrTooShort, "signal too short for constant-Q analysis")
		}
		y = decimate2(y)
		sr /= 2
		hop /= 2
	}

	myY, mySR, myHop := y, sr, hop
	responses := make([][][]complex128, 0, cqtOctaves)
	for i := 0; i < cqtOctaves; i++ {
		hi := cqtBins - cqtBinsPerOctave*i
		lo := max(0, hi-cqtBinsPerOctave)
		filters, nFFT := cqtFilters(mySR, freqs[lo:hi], q)
		scale := complex(math.Sqrt(sr/mySR), 0)
		for _, f := range filters {
			for j := range f.vals {
				f.vals[j] *= scale
			}
		}
		responses = append(responses, cqtResponse(myY, nFFT, myHop, filters))

		if myHop%2 == 0 {
			myHop /= 2
			mySR /= 2
			myY = decimate2(myY)
		}
	}

	nf := math.MaxInt
	for _, r := range responses {
		nf = min(nf, len(r[0]))
	}
	out := mat.NewDense(cqtBins, nf, nil)
	end := cqtBins
	for _, r := range responses {
		start := end - len(r)
		for j, row := range r {
			length := q * sr / freqs[start+j]
			norm := math.Sqrt(length)
			for t := 0; t < nf; t++ {
				out.Set(start+j, t, cmplx.Abs(row[t])/norm)
			}
		}
		end = start
	}
	return out, nil
}

func twoFactors(x int) int {
	n := 0
	for x > 0 && x%2 == 0 {
		x /= 2
		n++
	}
	return n
}

// cqtFilters builds Hann-windowed complex exponential filters for freqs at
// sample rate sr, L1-normalized, scaled by their length and transformed to
// the frequency domain. Small coefficients carrying 1% of each filter's
// magnitude are dropped.
func cqtFilters(sr float64, freqs []float64, q float64) ([]cqFilter, int) {
	lengths := make([]float64, len(freqs))
	maxLen := 0.0
	for i, f := range freqs {
		lengths[i] = q * sr / f
		maxLen = math.Max(maxLen, lengths[i])
	}
	nFFT := 1 << int(math.Ceil(math.Log2(maxLen)))

	fft := fourier.NewCmplxFFT(nFFT)
	buf := make([]complex128, nFFT)
	filters := make([]cqFilter, len(freqs))
	for i, f := range freqs {
		l := lengths[i]
		start := int(math.Floor(-l / 2))
		stop := int(math.Floor(l / 2))
		n := stop - start
		win := hann(n)
		var norm float64
		for _, w := range win {
			norm += math.Abs(w)
		}

		clear(buf)
		lpad := (nFFT - n) / 2
		gain := l / float64(nFFT) / norm
		for j := 0; j < n; j++ {
			phase := 2 * math.Pi * f * float64(start+j) / sr
			buf[lpad+j] = cmplx.Rect(win[j]*gain, phase)
		}
		spec := fft.Coefficients(nil, buf)[:nFFT/2+1]
		filters[i] = sparsify(spec, cqtSparsity)
	}
	return filters, nFFT
}

// sparsify keeps the coefficients of x whose magnitude is at least the
// smallest one still needed once the quantile share of the total magnitude
// made of the smallest coefficients is discarded.
func sparsify(x []complex128, quantile float64) cqFilter {
	mags := make([]float64, len(x))
	var total float64
	for i, c := range x {
		mags[i] = cmplx.Abs(c)
		total += mags[i]
	}
	sorted := slices.Clone(mags)
	slices.Sort(sorted)

	threshold := sorted[len(sorted)-1]
	var cum float64
	for _, m := range sorted {
		cum += m / total
		if cum >= quantile {
			threshold = m
			break
		}
	}

	var f cqFilter
	for i, m := range mags {
		if m >= threshold {
			f.bins = append(f.bins, i)
			f.vals = append(f.vals, x[i])
		}
	}
	return f
}

// cqtResponse applies frequency-domain filters to the rectangular-window
// STFT of y. The result is indexed [filter][frame].
func cqtResponse(y []float64, nFFT, hop int, filters []cqFilter) [][]complex128 {
	d := stft(y, nFFT, hop, nil)
	out := make([][]complex128, len(filters))
	for i, f := range filters {
		row := make([]complex128, len(d))
		for t, frame := range d {
			var acc complex128
			for j, k := range f.bins {
				acc += f.vals[j] * frame[k]
			}
			row[t] = acc
		}
		out[i] = row
	}
	return out
}

// Half-band anti-aliasing filter for decimate2: a Blackman-windowed sinc
// with 129 taps and cutoff at 0.225 cycles per input sample.
var halfbandTaps = lowpassTaps(64, 0.225)

func lowpassTaps(half int, fc float64) []float64 {
	n := 2*half + 1
	h := make([]float64, n)
	var sum float64
	for i := range h {
		x := float64(i - half)
		s := 2 * fc
		if x != 0 {
			s = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
		w := 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1)) + 0.08*math.Cos(4*math.Pi*float64(i)/float64(n-1))
		h[i] = s * w
		sum += h[i]
	}
	for i := range h {
		h[i] /= sum
	}
	return h
}

// decimate2 low-pass filters y and keeps every second sample. The output is
// scaled by sqrt(2) to preserve the energy of the passband.
func decimate2(y []float64) []float64 {
	half := len(halfbandTaps) / 2
	out := make([]float64, (len(y)+1)/2)
	for m := range out {
		center := 2 * m
		var acc float64
		for j, h := range halfbandTaps {
			idx := center + j - half
			if idx < 0 || idx >= len(y) {
				continue
			}
			acc += h * y[idx]
		}
		out[m] = acc * math.Sqrt2
	}
	return out
}
