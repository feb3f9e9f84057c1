package features

import "math"

// yin estimates the fundamental frequency of each frame with the YIN
// algorithm. Periods are searched between sr/fmax and sr/fmin samples, where
// sr is the rate used to convert periods to frequencies.
func yin(y []float64, fmin, fmax, sr float64, frameLen, hop int) []float64 {
	const troughThreshold = 0.1
	win := frameLen / 2
	minPeriod := int(math.Floor(sr / fmax))
	maxPeriod := min(int(math.Ceil(sr/fmin)), frameLen-win-1)
	minPeriod = max(minPeriod, 1)
	maxPeriod = max(maxPeriod, minPeriod+1)

	nLag := frameLen - win
	if maxPeriod >= nLag {
		return nil
	}

	padded := padConstant(y, frameLen/2)
	nf := 1 + (len(padded)-frameLen)/hop
	f0 := make([]float64, nf)

	acf := make([]float64, nLag)
	energy := make([]float64, nLag)
	diff := make([]float64, maxPeriod+1)
	cmndf := make([]float64, maxPeriod-minPeriod+1)

	for t := 0; t < nf; t++ {
		frame := padded[t*hop : t*hop+frameLen]

		for tau := 0; tau <= maxPeriod; tau++ {
			var a float64
			for j := 1; j <= win; j++ {
				a += frame[j] * frame[j+tau]
			}
			if math.Abs(a) < 1e-6 {
				a = 0
			}
			acf[tau] = a
		}
		var e float64
		for j := 1; j <= win; j++ {
			e += frame[j] * frame[j]
		}
		for tau := 0; tau < nLag; tau++ {
			if tau > 0 {
				e += frame[tau+win]*frame[tau+win] - frame[tau]*frame[tau]
			}
			v := e
			if math.Abs(v) < 1e-6 {
				v = 0
			}
			energy[tau] = v
		}

		for tau := 0; tau <= maxPeriod; tau++ {
			diff[tau] = energy[0] + energy[tau] - 2*acf[tau]
		}
		var cum float64
		for tau := 1; tau <= maxPeriod; tau++ {
			cum += diff[tau]
			if tau >= minPeriod {
				cmndf[tau-minPeriod] = diff[tau] / (cum/float64(tau) + tiny32)
			}
		}

		idx := pickPeriod(cmndf, troughThreshold)
		f0[t] = sr / (float64(minPeriod+idx) + parabolicShift(cmndf, idx))
	}
	return f0
}

// pickPeriod returns the first trough of x below threshold, or the global
// minimum when there is none.
func pickPeriod(x []float64, threshold float64) int {
	n := len(x)
	for i := 0; i < n; i++ {
		var trough bool
		switch {
		case i == 0:
			trough = n > 1 && x[0] < x[1]
		case i == n-1:
			trough = x[i] < x[i-1]
		default:
			trough = x[i] < x[i-1] && x[i] <= x[i+1]
		}
		if trough && x[i] < threshold {
			return i
		}
	}
	best := 0
	for i, v := range x {
		if v < x[best] {
			best = i
		}
	}
	return best
}

// parabolicShift refines the minimum at i by fitting a parabola through its
// neighbours. Edges and degenerate fits yield no shift.
func parabolicShift(x []float64, i int) float64 {
	if i <= 0 || i >= len(x)-1 {
		return 0
	}
	a := x[i+1] + x[i-1] - 2*x[i]
	b := (x[i+1] - x[i-1]) / 2
	if math.Abs(b) >= math.Abs(a) {
		return 0
	}
	return -b / a
}
