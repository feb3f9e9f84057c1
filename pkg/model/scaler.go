package model

import (
	"fmt"
	"math"
)

// Scaler standardizes features as (x - Mean) / Scale.
type Scaler struct {
	Mean  []float64 `msgpack:"mean" json:"mean"`
	Scale []float64 `msgpack:"scale" json:"scale"`
}

// Transform returns the standardized copy of x.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("model: scaler expects %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

func (s *Scaler) validate(dim int) error {
	if len(s.Mean) != dim {
		return fmt.Errorf("has %d means, extractor produces %d features", len(s.Mean), dim)
	}
	if len(s.Scale) != dim {
		return fmt.Errorf("has %d scales, extractor produces %d features", len(s.Scale), dim)
	}
	for i := range s.Mean {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) {
			return fmt.Errorf("mean[%d] is not finite", i)
		}
		if s.Scale[i] == 0 || math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) {
			return fmt.Errorf("scale[%d] = %v", i, s.Scale[i])
		}
	}
	return nil
}
