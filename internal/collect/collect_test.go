package collect_test

import (
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"latdyn/internal/artifacts"
	"latdyn/internal/collect"
	"latdyn/internal/logging"
	"latdyn/internal/services"
	"latdyn/internal/structure"
	"latdyn/internal/taskspec"
	"latdyn/internal/testsupport"
)

type stubReader struct {
	s    structure.Structure
	dirs []string
	err  error
}

func (r *stubReader) ReadStructure(dir string) (structure.Structure, error) {
	r.dirs = append(r.dirs, dir)
	return r.s, r.err
}

func spec(matrices ...structure.Matrix) *taskspec.Spec {
	prim := testsupport.CubicStructure("Po", 3.35)
	s := &taskspec.Spec{}
	for _, m := range matrices {
		sc, _ := structure.Supercell(prim, m)
		s.PerturbedTasks = append(s.PerturbedTasks, taskspec.PerturbedTask{
			ParentStructure: prim,
			SupercellMatrix: m,
			Structure:       sc,
			Forces:          make(artifacts.Forces, sc.NumSites()),
		})
	}
	return s
}

func TestRunEmptyInput(t *testing.T) {
	dir := testsupport.WorkDir(t)
	_, err := collect.New(logging.NewNop()).Run(context.Background(), dir, &taskspec.Spec{})
	var empty *services.EmptyInputError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyInputError, got %v", err)
	}
	if dir.Exists(artifacts.StructureDataFile) {
		t.Fatal("no artifacts should be written on empty input")
	}
}

func TestRunUsesFirstSampleMatrix(t *testing.T) {
	dir := testsupport.WorkDir(t)
	s := spec(structure.Diag(2, 2, 2), structure.Diag(3, 3, 3))
	data, err := collect.New(logging.NewNop()).Run(context.Background(), dir, s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if data.SupercellMatrix != structure.Diag(2, 2, 2) {
		t.Fatalf("expected first sample matrix, got %v", data.SupercellMatrix)
	}
	if data.SupercellStructure.NumSites() != 8 {
		t.Fatalf("expected regenerated 8-site supercell, got %d", data.SupercellStructure.NumSites())
	}

	structs, forces, err := dir.LoadSamples()
	if err != nil {
		t.Fatalf("LoadSamples: %v", err)
	}
	if len(structs) != 2 || len(forces) != 2 {
		t.Fatalf("expected 2 samples, got %d/%d", len(structs), len(forces))
	}
	stored, err := dir.LoadStructureData()
	if err != nil {
		t.Fatalf("LoadStructureData: %v", err)
	}
	if stored.SupercellMatrix != data.SupercellMatrix {
		t.Fatalf("stored matrix mismatch: %v", stored.SupercellMatrix)
	}
}

func TestRunPrefersLastOptimization(t *testing.T) {
	dir := testsupport.WorkDir(t)
	s := spec(structure.Diag(2, 1, 1))
	s.CalcLocs = []taskspec.CalcLoc{
		{Name: "structure optimization", Path: "/calcs/first"},
		{Name: "static", Path: "/calcs/static"},
		{Name: "Optimization 2", Path: "/calcs/second"},
	}
	relaxed := testsupport.CubicStructure("Po", 3.40)
	reader := &stubReader{s: relaxed}

	data, err := collect.New(logging.NewNop(), collect.WithRelaxationReader(reader)).Run(context.Background(), dir, s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reader.dirs) != 1 || reader.dirs[0] != "/calcs/second" {
		t.Fatalf("expected only the last optimization to be read, got %v", reader.dirs)
	}
	if data.Structure.Lattice[0][0] != 3.40 {
		t.Fatalf("expected relaxed parent, got %v", data.Structure.Lattice)
	}
	if data.SupercellStructure.Lattice[0][0] != 6.80 {
		t.Fatalf("supercell should be built from the relaxed parent, got %v", data.SupercellStructure.Lattice)
	}
	if data.SupercellMatrix != structure.Diag(2, 1, 1) {
		t.Fatalf("matrix should still come from the first sample, got %v", data.SupercellMatrix)
	}
}

func TestContcarReaderGzip(t *testing.T) {
	dir := t.TempDir()
	body := "Po\n1.0\n3.35 0 0\n0 3.35 0\n0 0 3.35\nPo\n1\nDirect\n0 0 0\n"
	file, err := os.Create(filepath.Join(dir, "CONTCAR.gz"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := gzip.NewWriter(file)
	if _, err := zw.Write([]byte(body)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err := collect.ContcarReader{}.ReadStructure(dir)
	if err != nil {
		t.Fatalf("ReadStructure: %v", err)
	}
	if s.NumSites() != 1 || s.Species[0] != "Po" {
		t.Fatalf("unexpected structure: %+v", s)
	}
}

func TestContcarReaderMissing(t *testing.T) {
	_, err := collect.ContcarReader{}.ReadStructure(t.TempDir())
	var missing *services.MissingOutputError
	if !errors.As(err, &missing) || len(missing.Candidates) != 2 {
		t.Fatalf("expected MissingOutputError with 2 candidates, got %v", err)
	}
}
