package structure

import (
	"fmt"
	"math"
)

// Displacements returns the Cartesian displacement of every site of perturbed
// relative to ideal, using the minimum image convention in the ideal cell.
// Both structures must list the same species in the same order.
func Displacements(ideal, perturbed Structure) ([][3]float64, error) {
	if ideal.NumSites() != perturbed.NumSites() {
		return nil, fmt.Errorf("site count mismatch: ideal %d, perturbed %d", ideal.NumSites(), perturbed.NumSites())
	}
	if len(perturbed.FracCoords) != perturbed.NumSites() || len(ideal.FracCoords) != ideal.NumSites() {
		return nil, fmt.Errorf("structure coordinates do not match species")
	}
	out := make([][3]float64, ideal.NumSites())
	for i := range ideal.FracCoords {
		if ideal.Species[i] != perturbed.Species[i] {
			return nil, fmt.Errorf("site %d species mismatch: ideal %s, perturbed %s", i, ideal.Species[i], perturbed.Species[i])
		}
		var delta [3]float64
		for j := 0; j < 3; j++ {
			d := perturbed.FracCoords[i][j] - ideal.FracCoords[i][j]
			delta[j] = d - math.Round(d)
		}
		out[i] = fracToCart(delta, ideal.Lattice)
	}
	return out, nil
}

// MaxDisplacement returns the largest displacement norm.
func MaxDisplacement(disps [][3]float64) float64 {
	var best float64
	for _, d := range disps {
		best = math.Max(best, math.Sqrt(d[0]*d[0]+d[1]*d[1]+d[2]*d[2]))
	}
	return best
}
