package structure

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const fracTol = 1e-8

// Supercell applies the transformation m to s. The new lattice is m·L and
// every parent site appears |det m| times, grouped by parent site.
func Supercell(s Structure, m Matrix) (Structure, error) {
	if err := s.Validate(); err != nil {
		return Structure{}, err
	}
	if err := m.Validate(); err != nil {
		return Structure{}, err
	}

	var lattice mat.Dense
	lattice.Mul(m.dense(), s.latticeDense())

	var inv mat.Dense
	if err := inv.Inverse(m.dense()); err != nil {
		return Structure{}, fmt.Errorf("invert supercell matrix: %w", err)
	}

	lo, hi := translationBounds(m)
	images := abs(m.Det())

	out := Structure{
		Species:    make([]string, 0, s.NumSites()*images),
		FracCoords: make([][3]float64, 0, s.NumSites()*images),
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Lattice[i][j] = lattice.At(i, j)
		}
	}

	for site, f := range s.FracCoords {
		f = wrap(f)
		count := 0
		for a := lo[0]; a <= hi[0]; a++ {
			for b := lo[1]; b <= hi[1]; b++ {
				for c := lo[2]; c <= hi[2]; c++ {
					p := [3]float64{f[0] + float64(a), f[1] + float64(b), f[2] + float64(c)}
					var q [3]float64
					for j := 0; j < 3; j++ {
						q[j] = p[0]*inv.At(0, j) + p[1]*inv.At(1, j) + p[2]*inv.At(2, j)
					}
					if !inUnitCell(q) {
						continue
					}
					out.Species = append(out.Species, s.Species[site])
					out.FracCoords = append(out.FracCoords, wrap(q))
					count++
				}
			}
		}
		if count != images {
			return Structure{}, fmt.Errorf("site %d produced %d images, expected %d", site, count, images)
		}
	}
	return out, nil
}

// translationBounds returns the integer box spanned by the corners of the
// supercell expressed in parent fractional coordinates.
func translationBounds(m Matrix) ([3]int, [3]int) {
	var lo, hi [3]int
	for mask := 0; mask < 8; mask++ {
		var corner [3]int
		for row := 0; row < 3; row++ {
			if mask&(1<<row) == 0 {
				continue
			}
			for j := 0; j < 3; j++ {
				corner[j] += m[row][j]
			}
		}
		for j := 0; j < 3; j++ {
			lo[j] = min(lo[j], corner[j])
			hi[j] = max(hi[j], corner[j])
		}
	}
	// Sites sit in [0,1) of the parent cell, so one extra cell on the low side
	// covers fractional offsets of the corners.
	for j := 0; j < 3; j++ {
		lo[j]--
	}
	return lo, hi
}

func inUnitCell(q [3]float64) bool {
	for _, v := range q {
		if v < -fracTol || v >= 1-fracTol {
			return false
		}
	}
	return true
}

func wrap(f [3]float64) [3]float64 {
	for i, v := range f {
		v -= math.Floor(v)
		if v >= 1-fracTol || v < fracTol {
			v = 0
		}
		f[i] = v
	}
	return f
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
