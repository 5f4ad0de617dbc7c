package structure

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrix is an integer supercell transformation. Row i gives supercell lattice
// vector i as a combination of the parent lattice vectors.
type Matrix [3][3]int

// Identity returns the identity transformation.
func Identity() Matrix {
	return Matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Diag builds a diagonal transformation.
func Diag(a, b, c int) Matrix {
	return Matrix{{a, 0, 0}, {0, b, 0}, {0, 0, c}}
}

// Det returns the determinant, the number of parent cells in the supercell.
func (m Matrix) Det() int {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// IsDiagonal reports whether every off-diagonal element is zero.
func (m Matrix) IsDiagonal() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i != j && m[i][j] != 0 {
				return false
			}
		}
	}
	return true
}

// Diagonal returns the diagonal entries.
func (m Matrix) Diagonal() [3]int {
	return [3]int{m[0][0], m[1][1], m[2][2]}
}

// Validate rejects singular transformations.
func (m Matrix) Validate() error {
	if m.Det() == 0 {
		return fmt.Errorf("supercell matrix %v is singular", m)
	}
	return nil
}

func (m Matrix) dense() *mat.Dense {
	data := make([]float64, 0, 9)
	for _, row := range m {
		for _, v := range row {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(3, 3, data)
}
