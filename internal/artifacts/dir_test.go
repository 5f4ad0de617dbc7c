package artifacts_test

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"latdyn/internal/artifacts"
	"latdyn/internal/services"
	"latdyn/internal/structure"
)

func openTemp(t *testing.T) *artifacts.Dir {
	t.Helper()
	dir, err := artifacts.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return dir
}

func TestRenormFileNames(t *testing.T) {
	cases := []struct {
		temp float64
		fcs  string
		par  string
		fc2  string
	}{
		{0, "force_constants_0K.fcs", "parameters_0K.txt", "FORCE_CONSTANTS_2ND_0K"},
		{300, "force_constants_300K.fcs", "parameters_300K.txt", "FORCE_CONSTANTS_2ND_300K"},
		{77.5, "force_constants_77.5K.fcs", "parameters_77.5K.txt", "FORCE_CONSTANTS_2ND_77.5K"},
	}
	for _, tc := range cases {
		if got := artifacts.RenormForceConstantsFile(tc.temp); got != tc.fcs {
			t.Fatalf("fcs name for %v: got %q want %q", tc.temp, got, tc.fcs)
		}
		if got := artifacts.RenormParametersFile(tc.temp); got != tc.par {
			t.Fatalf("params name for %v: got %q want %q", tc.temp, got, tc.par)
		}
		if got := artifacts.RenormSecondOrderFile(tc.temp); got != tc.fc2 {
			t.Fatalf("fc2 name for %v: got %q want %q", tc.temp, got, tc.fc2)
		}
		parsed, ok := artifacts.ParseRenormTemperature(tc.fcs)
		if !ok || parsed != tc.temp {
			t.Fatalf("parse %q: got %v %v", tc.fcs, parsed, ok)
		}
	}
	if _, ok := artifacts.ParseRenormTemperature("force_constants.fcs"); ok {
		t.Fatal("plain force constants file should not parse as renormalized")
	}
}

func TestParametersRoundTrip(t *testing.T) {
	dir := openTemp(t)
	params := []float64{1.5, -2.25e-3, 0, 42}
	if err := dir.WriteParameters(artifacts.ParametersFile, params); err != nil {
		t.Fatalf("WriteParameters: %v", err)
	}
	got, err := dir.ReadParameters(artifacts.ParametersFile)
	if err != nil {
		t.Fatalf("ReadParameters: %v", err)
	}
	if diff := cmp.Diff(params, got); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestReadJSONMissingIsNotFound(t *testing.T) {
	dir := openTemp(t)
	var data artifacts.StructureData
	err := dir.ReadJSON(artifacts.StructureDataFile, &data)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSamplesRoundTrip(t *testing.T) {
	dir := openTemp(t)
	prim := structure.Structure{
		Lattice:    [3][3]float64{{3, 0, 0}, {0, 3, 0}, {0, 0, 3}},
		Species:    []string{"Po"},
		FracCoords: [][3]float64{{0, 0, 0}},
	}
	sc, err := structure.Supercell(prim, structure.Diag(2, 1, 1))
	if err != nil {
		t.Fatalf("Supercell: %v", err)
	}
	data := artifacts.StructureData{Structure: prim, SupercellStructure: sc, SupercellMatrix: structure.Diag(2, 1, 1)}
	forces := []artifacts.Forces{{{0.1, 0, 0}, {-0.1, 0, 0}}}
	if err := dir.SaveSamples([]structure.Structure{sc}, forces, data); err != nil {
		t.Fatalf("SaveSamples: %v", err)
	}

	structs, gotForces, err := dir.LoadSamples()
	if err != nil {
		t.Fatalf("LoadSamples: %v", err)
	}
	if len(structs) != 1 || structs[0].NumSites() != 2 {
		t.Fatalf("unexpected structures: %+v", structs)
	}
	if diff := cmp.Diff(forces, gotForces); diff != "" {
		t.Fatalf("forces mismatch (-want +got):\n%s", diff)
	}
	gotData, err := dir.LoadStructureData()
	if err != nil {
		t.Fatalf("LoadStructureData: %v", err)
	}
	if gotData.SupercellMatrix != data.SupercellMatrix {
		t.Fatalf("matrix mismatch: %v", gotData.SupercellMatrix)
	}
}

func TestLoadSamplesRejectsMisalignedFiles(t *testing.T) {
	dir := openTemp(t)
	if err := dir.WriteJSON(artifacts.PerturbedStructuresFile, []structure.Structure{{}}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := dir.WriteJSON(artifacts.PerturbedForcesFile, []artifacts.Forces{}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if _, _, err := dir.LoadSamples(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLockIsExclusive(t *testing.T) {
	dir := openTemp(t)
	first, err := dir.Lock()
	if err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	if _, err := dir.Lock(); !errors.Is(err, artifacts.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	second, err := dir.Lock()
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	_ = second.Unlock()
}

func TestOpenRejectsFile(t *testing.T) {
	path := t.TempDir() + "/file"
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := artifacts.Open(path); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestThermalDataMergeAndAppend(t *testing.T) {
	harmonic := artifacts.ThermalData{Temperature: []float64{0, 100}, HeatCapacity: []float64{0, 1}}
	harmonic.Merge(artifacts.ThermalData{Gruneisen: []float64{1.1, 1.2}})
	if diff := cmp.Diff([]float64{1.1, 1.2}, harmonic.Gruneisen); diff != "" {
		t.Fatalf("gruneisen mismatch (-want +got):\n%s", diff)
	}
	if harmonic.HeatCapacity[1] != 1 {
		t.Fatal("merge must keep harmonic fields")
	}

	var agg artifacts.ThermalData
	agg.Append(artifacts.ThermalPoint{Temperature: 300, FreeEnergy: -1})
	agg.Append(artifacts.ThermalPoint{Temperature: 500, FreeEnergy: -2})
	if agg.Len() != 2 || len(agg.ExpansionRatio) != 2 {
		t.Fatalf("columns not aligned: %+v", agg)
	}
}
