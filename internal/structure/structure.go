package structure

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/gonum/mat"
)

// Structure is a periodic arrangement of atoms. Lattice rows are the lattice
// vectors in Angstrom; FracCoords are fractional coordinates per site.
type Structure struct {
	Lattice    [3][3]float64 `json:"lattice"`
	Species    []string      `json:"species"`
	FracCoords [][3]float64  `json:"frac_coords"`
}

// NumSites returns the number of atoms.
func (s Structure) NumSites() int {
	return len(s.Species)
}

// Validate reports structural inconsistencies.
func (s Structure) Validate() error {
	if len(s.Species) == 0 {
		return errors.New("structure has no sites")
	}
	if len(s.Species) != len(s.FracCoords) {
		return fmt.Errorf("structure has %d species but %d coordinates", len(s.Species), len(s.FracCoords))
	}
	if math.Abs(s.Volume()) < 1e-8 {
		return errors.New("structure lattice is singular")
	}
	for i, sp := range s.Species {
		if strings.TrimSpace(sp) == "" {
			return fmt.Errorf("site %d has no species", i)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s Structure) Clone() Structure {
	out := Structure{Lattice: s.Lattice}
	out.Species = append([]string(nil), s.Species...)
	out.FracCoords = append([][3]float64(nil), s.FracCoords...)
	return out
}

func (s Structure) latticeDense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		s.Lattice[0][0], s.Lattice[0][1], s.Lattice[0][2],
		s.Lattice[1][0], s.Lattice[1][1], s.Lattice[1][2],
		s.Lattice[2][0], s.Lattice[2][1], s.Lattice[2][2],
	})
}

// Volume returns the signed cell volume in cubic Angstrom.
func (s Structure) Volume() float64 {
	return mat.Det(s.latticeDense())
}

// Lengths returns the lattice vector lengths a, b, c.
func (s Structure) Lengths() [3]float64 {
	var out [3]float64
	for i, row := range s.Lattice {
		out[i] = math.Sqrt(row[0]*row[0] + row[1]*row[1] + row[2]*row[2])
	}
	return out
}

// ReciprocalLengths returns the lengths of the reciprocal lattice vectors
// without the 2π factor.
func (s Structure) ReciprocalLengths() ([3]float64, error) {
	var inv mat.Dense
	if err := inv.Inverse(s.latticeDense()); err != nil {
		return [3]float64{}, fmt.Errorf("invert lattice: %w", err)
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		col := mat.Col(nil, i, &inv)
		out[i] = math.Sqrt(col[0]*col[0] + col[1]*col[1] + col[2]*col[2])
	}
	return out, nil
}

// CartesianCoords converts every site to Cartesian coordinates.
func (s Structure) CartesianCoords() [][3]float64 {
	out := make([][3]float64, len(s.FracCoords))
	for i, f := range s.FracCoords {
		out[i] = fracToCart(f, s.Lattice)
	}
	return out
}

func fracToCart(f [3]float64, lattice [3][3]float64) [3]float64 {
	var c [3]float64
	for j := 0; j < 3; j++ {
		c[j] = f[0]*lattice[0][j] + f[1]*lattice[1][j] + f[2]*lattice[2][j]
	}
	return c
}

// Elements returns the distinct species in order of first appearance.
func (s Structure) Elements() []string {
	seen := make(map[string]struct{}, len(s.Species))
	var out []string
	for _, sp := range s.Species {
		if _, ok := seen[sp]; ok {
			continue
		}
		seen[sp] = struct{}{}
		out = append(out, sp)
	}
	return out
}

// Composition counts sites per element.
func (s Structure) Composition() map[string]int {
	out := make(map[string]int)
	for _, sp := range s.Species {
		out[sp]++
	}
	return out
}

// ReducedFormula renders the composition divided by its greatest common
// divisor, elements in order of first appearance (Si2 -> "Si", Ga4As4 -> "GaAs").
func (s Structure) ReducedFormula() string {
	comp := s.Composition()
	elements := s.Elements()
	divisor := 0
	for _, el := range elements {
		divisor = gcd(divisor, comp[el])
	}
	if divisor == 0 {
		return ""
	}
	var b strings.Builder
	for _, el := range elements {
		b.WriteString(el)
		if n := comp[el] / divisor; n != 1 {
			b.WriteString(strconv.Itoa(n))
		}
	}
	return b.String()
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// NormalizeSymbol canonicalizes an element symbol ("si" -> "Si"). VASP
// potentials such as "Fe_pv" or "Ga_d" are reduced to the element.
func NormalizeSymbol(raw string) string {
	sym := strings.TrimSpace(raw)
	if idx := strings.IndexAny(sym, "_/."); idx > 0 {
		sym = sym[:idx]
	}
	// Casers carry state and are not shared between goroutines.
	return cases.Title(language.Und).String(strings.ToLower(sym))
}
