package renorm

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
)

var errUnsorted = errors.New("temperatures must be strictly ascending")

// ExpansionFractions integrates the linear thermal expansion coefficient
// alpha(T) from 0 K with the trapezoidal rule, returning the fractional
// lattice expansion at each temperature. temps must be strictly ascending.
// Without a 0 K sample, alpha(0) = 0 anchors the curve.
func ExpansionFractions(temps, alpha []float64) ([]float64, error) {
	if len(temps) != len(alpha) {
		return nil, fmt.Errorf("%d temperatures but %d expansion coefficients", len(temps), len(alpha))
	}
	if len(temps) == 0 {
		return nil, nil
	}
	if floats.HasNaN(alpha) {
		return nil, errors.New("expansion coefficients contain NaN")
	}
	if !sort.Float64sAreSorted(temps) || hasDuplicates(temps) {
		return nil, errUnsorted
	}

	xs := temps
	ys := alpha
	offset := 0
	if temps[0] != 0 {
		xs = append([]float64{0}, temps...)
		ys = append([]float64{0}, alpha...)
		offset = 1
	}

	out := make([]float64, len(temps))
	for i := range temps {
		k := i + offset
		if k == 0 {
			out[i] = 0
			continue
		}
		out[i] = integrate.Trapezoidal(xs[:k+1], ys[:k+1])
	}
	return out, nil
}

func hasDuplicates(sorted []float64) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return true
		}
	}
	return false
}
