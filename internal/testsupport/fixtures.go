package testsupport

import (
	"testing"

	"latdyn/internal/artifacts"
	"latdyn/internal/structure"
)

// CubicStructure returns a one-site simple cubic cell with lattice constant a.
func CubicStructure(species string, a float64) structure.Structure {
	return structure.Structure{
		Lattice:    [3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}},
		Species:    []string{species},
		FracCoords: [][3]float64{{0, 0, 0}},
	}
}

// RockSaltStructure returns a two-site primitive rock-salt cell.
func RockSaltStructure(cation, anion string, a float64) structure.Structure {
	h := a / 2
	return structure.Structure{
		Lattice:    [3][3]float64{{0, h, h}, {h, 0, h}, {h, h, 0}},
		Species:    []string{cation, anion},
		FracCoords: [][3]float64{{0, 0, 0}, {0.5, 0.5, 0.5}},
	}
}

// SeedFittingRun writes collect-stage artifacts for a 2x2x2 cubic supercell:
// n perturbed samples, each with its first site displaced along x.
func SeedFittingRun(t testing.TB, dir *artifacts.Dir, n int) artifacts.StructureData {
	t.Helper()

	prim := CubicStructure("Si", 2.7)
	matrix := structure.Diag(2, 2, 2)
	ideal, err := structure.Supercell(prim, matrix)
	if err != nil {
		t.Fatalf("supercell: %v", err)
	}
	data := artifacts.StructureData{
		Structure:          prim,
		SupercellStructure: ideal,
		SupercellMatrix:    matrix,
	}

	structures := make([]structure.Structure, 0, n)
	forces := make([]artifacts.Forces, 0, n)
	for i := 0; i < n; i++ {
		perturbed := ideal.Clone()
		perturbed.FracCoords[0][0] += 0.002 * float64(i+1)
		f := make(artifacts.Forces, ideal.NumSites())
		f[0] = [3]float64{-0.1 * float64(i+1), 0, 0}
		structures = append(structures, perturbed)
		forces = append(forces, f)
	}
	if err := dir.SaveSamples(structures, forces, data); err != nil {
		t.Fatalf("save samples: %v", err)
	}
	return data
}

// SeedFitOutputs writes the files a successful fit leaves behind.
func SeedFitOutputs(t testing.TB, dir *artifacts.Dir, params []float64) {
	t.Helper()

	for _, name := range []string{artifacts.ForceConstantsFile, artifacts.ClusterSpaceFile} {
		if err := dir.WriteFile(name, []byte("fit output\n")); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := dir.WriteParameters(artifacts.ParametersFile, params); err != nil {
		t.Fatalf("write parameters: %v", err)
	}
}
