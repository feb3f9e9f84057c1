package features

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// frameRMS returns the root-mean-square energy of each centered,
// zero-padded frame.
func frameRMS(y []float64, frameLen, hop int) []float64 {
	padded := padConstant(y, frameLen/2)
	nf := 1 + (len(padded)-frameLen)/hop
	out := make([]float64, nf)
	for t := range out {
		var sum float64
		for _, s := range padded[t*hop : t*hop+frameLen] {
			sum += s * s
		}
		out[t] = math.Sqrt(sum / float64(frameLen))
	}
	return out
}

// zeroCrossingRate returns the fraction of sign changes per frame. Frames
// are centered with edge padding; magnitudes at or below 1e-10 count as zero
// and zero counts as positive.
func zeroCrossingRate(y []float64, frameLen, hop int) []float64 {
	const threshold = 1e-10
	padded := padEdge(y, frameLen/2)
	nf := 1 + (len(padded)-frameLen)/hop
	out := make([]float64, nf)
	negative := func(s float64) bool {
		if math.Abs(s) <= threshold {
			return false
		}
		return s < 0
	}
	for t := range out {
		frame := padded[t*hop : t*hop+frameLen]
		n := 0
		for i := 1; i < len(frame); i++ {
			if negative(frame[i]) != negative(frame[i-1]) {
				n++
			}
		}
		out[t] = float64(n) / float64(frameLen)
	}
	return out
}

// spectralShape returns the per-frame centroid and bandwidth (p=2) of a
// magnitude spectrogram.
func spectralShape(mag *mat.Dense, freqs []float64) (centroid, bandwidth []float64) {
	nb, nf := mag.Dims()
	centroid = make([]float64, nf)
	bandwidth = make([]float64, nf)
	for t := 0; t < nf; t++ {
		var total float64
		for k := 0; k < nb; k++ {
			total += mag.At(k, t)
		}
		if total == 0 {
			continue
		}
		var c float64
		for k := 0; k < nb; k++ {
			c += freqs[k] * mag.At(k, t) / total
		}
		var bw float64
		for k := 0; k < nb; k++ {
			d := freqs[k] - c
			bw += mag.At(k, t) / total * d * d
		}
		centroid[t] = c
		bandwidth[t] = math.Sqrt(bw)
	}
	return centroid, bandwidth
}

// spectralRolloff returns, per frame, the lowest frequency below which
// pct of the spectral magnitude lies.
func spectralRolloff(mag *mat.Dense, freqs []float64, pct float64) []float64 {
	nb, nf := mag.Dims()
	out := make([]float64, nf)
	cum := make([]float64, nb)
	for t := 0; t < nf; t++ {
		var run float64
		for k := 0; k < nb; k++ {
			run += mag.At(k, t)
			cum[k] = run
		}
		threshold := pct * run
		for k := 0; k < nb; k++ {
			if cum[k] >= threshold {
				out[t] = freqs[k]
				break
			}
		}
	}
	return out
}

// spectralContrast returns the dB difference between spectral peaks and
// valleys in six octave bands from 200 Hz plus the band above them.
func spectralContrast(mag *mat.Dense, freqs []float64) *mat.Dense {
	const (
		fmin     = 200.0
		nBands   = numContrast - 1
		quantile = 0.02
	)
	nb, nf := mag.Dims()

	edges := make([]float64, nBands+2)
	for i := 1; i < len(edges); i++ {
		edges[i] = fmin * math.Pow(2, float64(i-1))
	}

	peak := mat.NewDense(nBands+1, nf, nil)
	valley := mat.NewDense(nBands+1, nf, nil)
	vals := make([]float64, 0, nb)
	for b := 0; b <= nBands; b++ {
		lo, hi := edges[b], edges[b+1]
		first, last := -1, -1
		for k, f := range freqs {
			if f >= lo && f <= hi {
				if first < 0 {
					first = k
				}
				last = k
			}
		}
		if first < 0 {
			continue
		}
		if b > 0 {
			first--
		}
		if b == nBands {
			last = nb - 1
		}
		count := last - first + 1
		// Every band but the last drops its top bin.
		subEnd := last
		if b < nBands {
			subEnd--
		}
		q := int(math.Max(1, math.RoundToEven(quantile*float64(count))))

		for t := 0; t < nf; t++ {
			vals = vals[:0]
			for k := first; k <= subEnd; k++ {
				vals = append(vals, mag.At(k, t))
			}
			slices.Sort(vals)
			n := min(q, len(vals))
			var lowSum, highSum float64
			for i := 0; i < n; i++ {
				lowSum += vals[i]
				highSum += vals[len(vals)-1-i]
			}
			valley.Set(b, t, lowSum/float64(n))
			peak.Set(b, t, highSum/float64(n))
		}
	}

	var out mat.Dense
	out.Sub(powerToDB(peak), powerToDB(valley))
	return &out
}
