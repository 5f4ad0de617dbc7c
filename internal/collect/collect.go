// Package collect gathers displaced-supercell calculations from the task spec
// into the working-directory artifacts the fitter consumes.
package collect

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"latdyn/internal/artifacts"
	"latdyn/internal/logging"
	"latdyn/internal/services"
	"latdyn/internal/structure"
	"latdyn/internal/taskspec"
)

// RelaxationReader loads the relaxed structure of an optimization calculation.
type RelaxationReader interface {
	ReadStructure(dir string) (structure.Structure, error)
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithRelaxationReader replaces the CONTCAR reader (primarily for tests).
func WithRelaxationReader(r RelaxationReader) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.relax = r
		}
	}
}

// Aggregator implements the collection task.
type Aggregator struct {
	logger *slog.Logger
	relax  RelaxationReader
}

// New constructs an aggregator.
func New(logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		logger: logging.NewComponentLogger(logger, "collect"),
		relax:  ContcarReader{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run writes perturbed_structures.json, perturbed_forces.json and
// structure_data.json. The supercell matrix comes from the first sample; the
// parent structure too, unless the spec lists an optimization calculation, in
// which case its relaxed structure wins (last one listed).
func (a *Aggregator) Run(ctx context.Context, dir *artifacts.Dir, spec *taskspec.Spec) (artifacts.StructureData, error) {
	logger := logging.WithContext(ctx, a.logger)
	if spec == nil || len(spec.PerturbedTasks) == 0 {
		return artifacts.StructureData{}, &services.EmptyInputError{What: "perturbed structures"}
	}

	first := spec.PerturbedTasks[0]
	parent := first.ParentStructure
	source := "first perturbed task"
	if optDir := spec.OptimizationDir(); optDir != "" {
		if !filepath.IsAbs(optDir) {
			optDir = dir.Path(optDir)
		}
		relaxed, err := a.relax.ReadStructure(optDir)
		if err != nil {
			return artifacts.StructureData{}, services.Wrap(services.ErrValidation, "collect", "read optimization", optDir, err)
		}
		parent = relaxed
		source = optDir
	}

	supercell, err := structure.Supercell(parent, first.SupercellMatrix)
	if err != nil {
		return artifacts.StructureData{}, services.Wrap(services.ErrValidation, "collect", "supercell", "", err)
	}

	structures := make([]structure.Structure, 0, len(spec.PerturbedTasks))
	forces := make([]artifacts.Forces, 0, len(spec.PerturbedTasks))
	for _, task := range spec.PerturbedTasks {
		structures = append(structures, task.Structure)
		forces = append(forces, task.Forces)
	}

	data := artifacts.StructureData{
		Structure:          parent,
		SupercellStructure: supercell,
		SupercellMatrix:    first.SupercellMatrix,
	}
	if err := dir.SaveSamples(structures, forces, data); err != nil {
		return artifacts.StructureData{}, err
	}

	logger.Info("collected perturbed structures",
		logging.Int("samples", len(structures)),
		logging.Int("supercell_sites", supercell.NumSites()),
		logging.String("formula", parent.ReducedFormula()),
		logging.String("parent_source", source),
	)
	return data, nil
}

// ContcarReader reads CONTCAR, falling back to CONTCAR.gz.
type ContcarReader struct{}

// ReadStructure implements RelaxationReader.
func (ContcarReader) ReadStructure(dir string) (structure.Structure, error) {
	for _, name := range []string{"CONTCAR", "CONTCAR.gz"} {
		path := filepath.Join(dir, name)
		file, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return structure.Structure{}, err
		}
		s, err := readMaybeGzip(file, filepath.Ext(name) == ".gz")
		_ = file.Close()
		if err != nil {
			return structure.Structure{}, fmt.Errorf("%s: %w", path, err)
		}
		return s, nil
	}
	return structure.Structure{}, &services.MissingOutputError{Candidates: []string{
		filepath.Join(dir, "CONTCAR"), filepath.Join(dir, "CONTCAR.gz"),
	}}
}

func readMaybeGzip(r io.Reader, gz bool) (structure.Structure, error) {
	if !gz {
		return structure.ReadPOSCAR(r)
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		return structure.Structure{}, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()
	return structure.ReadPOSCAR(zr)
}
