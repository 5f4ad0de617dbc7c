package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"latdyn/internal/artifacts"
	"latdyn/internal/config"
	"latdyn/internal/logging"
	"latdyn/internal/oracle"
	"latdyn/internal/services"
	"latdyn/internal/store"
	"latdyn/internal/structure"
	"latdyn/internal/taskspec"
)

// Oracle derives phonon artifacts from force constants.
type Oracle interface {
	Phonon(ctx context.Context, req oracle.PhononRequest) (oracle.PhononResponse, error)
}

// DocumentStore is the persistence surface the adapter needs.
type DocumentStore interface {
	NextSequence(ctx context.Context, name string) (int64, error)
	InsertDocument(ctx context.Context, collection string, doc any) (int64, error)
	PutBlob(ctx context.Context, collection string, data []byte) (string, error)
}

// Options controls what gets derived and attached.
type Options struct {
	MeshDensity  float64
	ImaginaryTol float64
	// AdditionalFields are merged into the top level of every document.
	AdditionalFields map[string]any
}

// OptionsFromConfig returns the configured defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MeshDensity:  cfg.Phonon.MeshDensity,
		ImaginaryTol: cfg.Fitting.ImaginaryTol,
	}
}

// Adapter implements the *-to-db tasks.
type Adapter struct {
	oracle Oracle
	store  DocumentStore
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an adapter.
func New(o Oracle, st DocumentStore, logger *slog.Logger) *Adapter {
	return &Adapter{
		oracle: o,
		store:  st,
		logger: logging.NewComponentLogger(logger, "persist"),
		now:    time.Now,
	}
}

// PhononIDs are the blob identifiers of one set of phonon artifacts.
type PhononIDs struct {
	DOS                  string `json:"phonon_dos_fs_id"`
	BandStructureUniform string `json:"phonon_bandstructure_uniform_fs_id"`
	BandStructureLine    string `json:"phonon_bandstructure_line_fs_id"`
	ForceConstants       string `json:"force_constants_fs_id"`
}

// FittingDocument is the lattice_dynamics record of one fitting run.
type FittingDocument struct {
	CreatedAt           time.Time             `json:"created_at"`
	Tags                []string              `json:"tags"`
	FormulaPretty       string                `json:"formula_pretty"`
	Structure           structure.Structure   `json:"structure"`
	SupercellMatrix     structure.Matrix      `json:"supercell_matrix"`
	SupercellStructure  structure.Structure   `json:"supercell_structure"`
	PerturbedStructures []structure.Structure `json:"perturbed_structures"`
	PerturbedForces     []artifacts.Forces    `json:"perturbed_forces"`
	FittingData         artifacts.FittingData `json:"fitting_data"`
	ThermalData         artifacts.ThermalData `json:"thermal_data"`
	PhononIDs
	FittingID  int64  `json:"fc_fitting_id"`
	FittingDir string `json:"fc_fitting_dir"`
}

// RenormTemperature is the per-temperature part of a renormalized run.
type RenormTemperature struct {
	Temperature float64 `json:"temperature"`
	PhononIDs
}

// RenormDocument is the renormalized_lattice_dynamics record of one run.
type RenormDocument struct {
	CreatedAt          time.Time              `json:"created_at"`
	Tags               []string               `json:"tags"`
	FormulaPretty      string                 `json:"formula_pretty"`
	Structure          structure.Structure    `json:"structure"`
	SupercellMatrix    structure.Matrix       `json:"supercell_matrix"`
	SupercellStructure structure.Structure    `json:"supercell_structure"`
	ThermalData        *artifacts.ThermalData `json:"thermal_data,omitempty"`
	Temperatures       []float64              `json:"temperatures"`
	Renormalized       []RenormTemperature    `json:"renormalized"`
	FittingID          int64                  `json:"fc_fitting_id"`
	FittingDir         string                 `json:"fc_fitting_dir"`
}

// ForceConstantsToDb stores the fitting run in dir.
func (a *Adapter) ForceConstantsToDb(ctx context.Context, dir *artifacts.Dir, spec *taskspec.Spec, opts Options) (taskspec.Update, error) {
	logger := logging.WithContext(ctx, a.logger)

	data, err := dir.LoadStructureData()
	if err != nil {
		return taskspec.Update{}, err
	}
	structures, forces, err := dir.LoadSamples()
	if err != nil {
		return taskspec.Update{}, err
	}
	var fitting artifacts.FittingData
	if err := dir.ReadJSON(artifacts.FittingDataFile, &fitting); err != nil {
		return taskspec.Update{}, err
	}
	var thermal artifacts.ThermalData
	if err := dir.ReadJSON(artifacts.ThermalDataQHAFile, &thermal); err != nil {
		return taskspec.Update{}, err
	}

	ids, err := a.storePhonons(ctx, dir, data, artifacts.ForceConstantsFile, opts)
	if err != nil {
		return taskspec.Update{}, err
	}
	id, err := a.store.NextSequence(ctx, store.FittingIDCounter)
	if err != nil {
		return taskspec.Update{}, err
	}

	doc := FittingDocument{
		CreatedAt:           a.now(),
		Tags:                tags(spec),
		FormulaPretty:       data.Structure.ReducedFormula(),
		Structure:           data.Structure,
		SupercellMatrix:     data.SupercellMatrix,
		SupercellStructure:  data.SupercellStructure,
		PerturbedStructures: structures,
		PerturbedForces:     forces,
		FittingData:         fitting,
		ThermalData:         thermal,
		PhononIDs:           ids,
		FittingID:           id,
		FittingDir:          dir.Root(),
	}
	if _, err := a.insert(ctx, store.CollectionLatticeDynamics, doc, opts); err != nil {
		return taskspec.Update{}, err
	}

	logger.Info("stored fitting run",
		logging.FittingID(id),
		logging.String("formula", doc.FormulaPretty),
		logging.Int("samples", len(structures)),
	)
	return taskspec.Update{FittingID: id, FittingDir: dir.Root()}, nil
}

// ForceConstantsRenormToDb stores every force_constants_{T}K.fcs in dir as
// one renormalized run.
func (a *Adapter) ForceConstantsRenormToDb(ctx context.Context, dir *artifacts.Dir, spec *taskspec.Spec, opts Options) (taskspec.Update, error) {
	logger := logging.WithContext(ctx, a.logger)

	data, err := dir.LoadStructureData()
	if err != nil {
		return taskspec.Update{}, err
	}
	temps, err := RenormTemperatures(dir)
	if err != nil {
		return taskspec.Update{}, err
	}

	doc := RenormDocument{
		Tags:               tags(spec),
		FormulaPretty:      data.Structure.ReducedFormula(),
		Structure:          data.Structure,
		SupercellMatrix:    data.SupercellMatrix,
		SupercellStructure: data.SupercellStructure,
		Temperatures:       temps,
		FittingDir:         dir.Root(),
	}
	for _, t := range temps {
		ids, err := a.storePhonons(services.WithTemperature(ctx, t), dir, data, artifacts.RenormForceConstantsFile(t), opts)
		if err != nil {
			return taskspec.Update{}, fmt.Errorf("%s K: %w", artifacts.FormatTemperature(t), err)
		}
		doc.Renormalized = append(doc.Renormalized, RenormTemperature{Temperature: t, PhononIDs: ids})
	}

	var thermal artifacts.ThermalData
	switch err := dir.ReadJSON(artifacts.ThermalDataRenormFile, &thermal); {
	case err == nil:
		doc.ThermalData = &thermal
	case errors.Is(err, services.ErrNotFound):
		logger.Debug("no renormalized thermal data to attach")
	default:
		return taskspec.Update{}, err
	}

	id, err := a.store.NextSequence(ctx, store.FittingIDCounter)
	if err != nil {
		return taskspec.Update{}, err
	}
	doc.FittingID = id
	doc.CreatedAt = a.now()
	if _, err := a.insert(ctx, store.CollectionRenormLatticeDynamics, doc, opts); err != nil {
		return taskspec.Update{}, err
	}

	logger.Info("stored renormalized run",
		logging.FittingID(id),
		logging.Floats("temperatures", temps),
	)
	return taskspec.Update{FittingID: id, FittingDir: dir.Root()}, nil
}

// RenormTemperatures lists the temperatures with renormalized force
// constants in dir, ascending. When thermal_data_renorm.json is present only
// the temperatures of the latest renormalization are returned, so files left
// by an earlier run with a different grid are ignored.
func RenormTemperatures(dir *artifacts.Dir) ([]float64, error) {
	names, err := dir.Glob("force_constants_*K.fcs")
	if err != nil {
		return nil, err
	}

	var latest map[string]bool
	var thermal artifacts.ThermalData
	switch err := dir.ReadJSON(artifacts.ThermalDataRenormFile, &thermal); {
	case err == nil:
		latest = make(map[string]bool, thermal.Len())
		for _, t := range thermal.Temperature {
			latest[artifacts.FormatTemperature(t)] = true
		}
	case errors.Is(err, services.ErrNotFound):
	default:
		return nil, err
	}

	var temps []float64
	for _, name := range names {
		t, ok := artifacts.ParseRenormTemperature(name)
		if !ok {
			continue
		}
		if latest != nil && !latest[artifacts.FormatTemperature(t)] {
			continue
		}
		temps = append(temps, t)
	}
	if len(temps) == 0 {
		return nil, &services.MissingOutputError{Candidates: []string{dir.Path("force_constants_{T}K.fcs")}}
	}
	sort.Float64s(temps)
	return temps, nil
}

func (a *Adapter) storePhonons(ctx context.Context, dir *artifacts.Dir, data artifacts.StructureData, fcsName string, opts Options) (PhononIDs, error) {
	if !dir.Exists(fcsName) {
		return PhononIDs{}, &services.MissingOutputError{Candidates: []string{dir.Path(fcsName)}}
	}
	resp, err := a.oracle.Phonon(ctx, oracle.PhononRequest{
		Structure:       data.Structure,
		SupercellMatrix: data.SupercellMatrix,
		ForceConstants:  dir.Path(fcsName),
		MeshDensity:     opts.MeshDensity,
		ImaginaryTol:    opts.ImaginaryTol,
	})
	if err != nil {
		return PhononIDs{}, err
	}

	var ids PhononIDs
	blobs := []struct {
		collection string
		payload    json.RawMessage
		dst        *string
	}{
		{store.BlobPhononDOS, resp.DOS, &ids.DOS},
		{store.BlobPhononBandStructure, resp.BandStructureUniform, &ids.BandStructureUniform},
		{store.BlobPhononBandStructure, resp.BandStructureLine, &ids.BandStructureLine},
		{store.BlobPhononForceConstants, resp.ForceConstants, &ids.ForceConstants},
	}
	for _, b := range blobs {
		if len(b.payload) == 0 {
			return PhononIDs{}, services.Wrap(services.ErrExternalTool, "persist", "phonon", "empty "+b.collection+" payload", nil)
		}
		id, err := a.store.PutBlob(ctx, b.collection, b.payload)
		if err != nil {
			return PhononIDs{}, err
		}
		*b.dst = id
	}
	return ids, nil
}

// insert flattens doc, overlays the additional fields and stores it.
func (a *Adapter) insert(ctx context.Context, collection string, doc any, opts Options) (int64, error) {
	clean, err := store.Sanitize(doc)
	if err != nil {
		return 0, fmt.Errorf("sanitize %s document: %w", collection, err)
	}
	fields, ok := clean.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%s document is not an object", collection)
	}
	for k, v := range opts.AdditionalFields {
		fields[k] = v
	}
	return a.store.InsertDocument(ctx, collection, fields)
}

func tags(spec *taskspec.Spec) []string {
	if spec == nil || spec.Tags == nil {
		return []string{}
	}
	return spec.Tags
}
