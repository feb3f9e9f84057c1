package features

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// hann returns a periodic (DFT-even) Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// padConstant returns y with pad zeros on both sides.
func padConstant(y []float64, pad int) []float64 {
	out := make([]float64, len(y)+2*pad)
	copy(out[pad:], y)
	return out
}

// padEdge returns y with pad copies of its first and last samples.
func padEdge(y []float64, pad int) []float64 {
	out := padConstant(y, pad)
	if len(y) == 0 {
		return out
	}
	for i := 0; i < pad; i++ {
		out[i] = y[0]
		out[len(out)-1-i] = y[len(y)-1]
	}
	return out
}

// numFrames is the frame count of a signal of n samples after centered
// padding of frameLen/2 on both sides.
func numFrames(n, hop int) int {
	return 1 + n/hop
}

// stft computes the short-time Fourier transform of y with centered zero
// padding. The window has length nFFT; nil means a rectangular window.
// The result is indexed [frame][bin] with nFFT/2+1 bins per frame.
func stft(y []float64, nFFT, hop int, window []float64) [][]complex128 {
	padded := padConstant(y, nFFT/2)
	nf := 1 + (len(padded)-nFFT)/hop
	fft := fourier.NewFFT(nFFT)
	buf := make([]float64, nFFT)
	out := make([][]complex128, nf)
	for t := 0; t < nf; t++ {
		frame := padded[t*hop : t*hop+nFFT]
		if window == nil {
			copy(buf, frame)
		} else {
			for i, s := range frame {
				buf[i] = s * window[i]
			}
		}
		out[t] = fft.Coefficients(nil, buf)
	}
	return out
}

// spectrogram returns |X|^power as a bins x frames matrix.
func spectrogram(x [][]complex128, power float64) *mat.Dense {
	nf := len(x)
	nb := len(x[0])
	s := mat.NewDense(nb, nf, nil)
	for t, frame := range x {
		for k, c := range frame {
			m := cmplx.Abs(c)
			if power == 2 {
				m *= m
			} else if power != 1 {
				m = math.Pow(m, power)
			}
			s.Set(k, t, m)
		}
	}
	return s
}

// fftFrequencies returns the center frequency of each STFT bin.
func fftFrequencies(sr float64, nFFT int) []float64 {
	f := make([]float64, nFFT/2+1)
	for k := range f {
		f[k] = float64(k) * sr / float64(nFFT)
	}
	return f
}
