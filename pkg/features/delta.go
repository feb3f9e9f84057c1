package features

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const deltaWidth = 9

// polyFitOperator returns the (order+1) x len(pos) least-squares operator P
// such that P·y are the coefficients c0..cN of the polynomial of degree
// order fitted to the points (pos[i], y[i]).
func polyFitOperator(pos []float64, order int) (*mat.Dense, error) {
	n := len(pos)
	a := mat.NewDense(n, order+1, nil)
	for i, z := range pos {
		p := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, p)
			p *= z
		}
	}
	eye := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		eye.Set(i, i, 1)
	}
	var op mat.Dense
	if err := op.Solve(a, eye); err != nil {
		return nil, fmt.Errorf("features: savgol fit: %w", err)
	}
	return &op, nil
}

// derivativeAt evaluates the deriv-th derivative at u of the polynomial with
// coefficients c.
func derivativeAt(c []float64, deriv int, u float64) float64 {
	var sum float64
	for m := deriv; m < len(c); m++ {
		fac := 1.0
		for j := m - deriv + 1; j <= m; j++ {
			fac *= float64(j)
		}
		p := 1.0
		for j := 0; j < m-deriv; j++ {
			p *= u
		}
		sum += fac * c[m] * p
	}
	return sum
}

// delta returns the order-th Savitzky–Golay derivative of each row of x
// along the time axis, using a window of 9 frames, polynomial order equal to
// the derivative order, and polynomial extrapolation over the first and last
// windows.
func delta(x *mat.Dense, order int) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols < deltaWidth {
		return nil, reject(ErrTooShort, "%d frames, need at least %d for deltas", cols, deltaWidth)
	}
	half := deltaWidth / 2

	centered := make([]float64, deltaWidth)
	offsets := make([]float64, deltaWidth)
	for i := range centered {
		centered[i] = float64(i - half)
		offsets[i] = float64(i)
	}
	interior, err := polyFitOperator(centered, order)
	if err != nil {
		return nil, err
	}
	edge, err := polyFitOperator(offsets, order)
	if err != nil {
		return nil, err
	}

	// Derivative of the fitted polynomial at the window center.
	weights := make([]float64, deltaWidth)
	for i := range weights {
		col := make([]float64, order+1)
		for m := 0; m <= order; m++ {
			col[m] = interior.At(m, i)
		}
		weights[i] = derivativeAt(col, order, 0)
	}

	out := mat.NewDense(rows, cols, nil)
	coef := make([]float64, order+1)
	fitEdge := func(row []float64, start int) {
		for m := 0; m <= order; m++ {
			var c float64
			for i := 0; i < deltaWidth; i++ {
				c += edge.At(m, i) * row[start+i]
			}
			coef[m] = c
		}
	}

	row := make([]float64, cols)
	for r := 0; r < rows; r++ {
		mat.Row(row, r, x)
		for t := half; t < cols-half; t++ {
			var v float64
			for i, w := range weights {
				v += w * row[t-half+i]
			}
			out.Set(r, t, v)
		}
		fitEdge(row, 0)
		for t := 0; t < half; t++ {
			out.Set(r, t, derivativeAt(coef, order, float64(t)))
		}
		fitEdge(row, cols-deltaWidth)
		for t := cols - half; t < cols; t++ {
			out.Set(r, t, derivativeAt(coef, order, float64(t-(cols-deltaWidth))))
		}
	}
	return out, nil
}
