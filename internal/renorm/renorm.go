package renorm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"latdyn/internal/artifacts"
	"latdyn/internal/config"
	"latdyn/internal/logging"
	"latdyn/internal/oracle"
	"latdyn/internal/services"
	"latdyn/internal/structure"
)

// Oracle is the subset of the helper protocol the renormalizer drives.
type Oracle interface {
	Renormalize(ctx context.Context, req oracle.RenormalizeRequest) (*oracle.RenormRecord, error)
	Expand(ctx context.Context, req oracle.ExpandRequest) (oracle.ExpandResponse, error)
	Export(ctx context.Context, req oracle.ExportRequest) error
}

// Options controls one renormalization run.
type Options struct {
	Temperatures         []float64
	Workers              int
	NConfigs             int
	ConvergenceThreshold float64
	ImaginaryTol         float64
	BulkModulus          *float64
	WithThermalExpansion bool
}

// OptionsFromConfig returns the configured renormalization defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Temperatures:         cfg.Renormalization.Temperatures,
		Workers:              cfg.Renormalization.Workers,
		NConfigs:             cfg.Renormalization.NConfigs,
		ConvergenceThreshold: cfg.Renormalization.ConvergenceThreshold,
		ImaginaryTol:         cfg.Fitting.ImaginaryTol,
		BulkModulus:          cfg.Fitting.BulkModulus,
		WithThermalExpansion: cfg.Renormalization.WithThermalExpansion,
	}
}

// Result describes the final per-temperature solutions.
type Result struct {
	// Records holds every persisted solution, ascending by temperature.
	Records []oracle.RenormRecord
	// Direct lists temperatures written without expansion coupling.
	Direct []float64
	// Corrected lists temperatures solved on the expanded geometry.
	Corrected []float64
	// Dropped lists temperatures for which the oracle returned nothing.
	Dropped []float64
	Thermal artifacts.ThermalData
}

// Renormalizer implements the renormalization task.
type Renormalizer struct {
	oracle Oracle
	logger *slog.Logger
}

// New constructs a renormalizer.
func New(o Oracle, logger *slog.Logger) *Renormalizer {
	return &Renormalizer{
		oracle: o,
		logger: logging.NewComponentLogger(logger, "renorm"),
	}
}

type solution struct {
	record    oracle.RenormRecord
	structure structure.Structure
	corrected bool
}

// Run renormalizes the fitted force constants in dir at every requested
// temperature and writes force_constants_{T}K.fcs, parameters_{T}K.txt and
// thermal_data_renorm.json.
func (r *Renormalizer) Run(ctx context.Context, dir *artifacts.Dir, opts Options) (Result, error) {
	logger := logging.WithContext(ctx, r.logger)

	temps := uniqueTemperatures(opts.Temperatures)
	if len(temps) == 0 {
		return Result{}, &services.EmptyInputError{What: "renormalization temperatures"}
	}
	data, err := dir.LoadStructureData()
	if err != nil {
		return Result{}, err
	}
	params, err := dir.ReadParameters(artifacts.ParametersFile)
	if err != nil {
		return Result{}, err
	}
	for _, name := range []string{artifacts.ForceConstantsFile, artifacts.ClusterSpaceFile} {
		if !dir.Exists(name) {
			return Result{}, &services.MissingOutputError{Candidates: []string{dir.Path(name)}}
		}
	}
	defer func() {
		for _, t := range temps {
			_ = dir.Remove(artifacts.ScratchForceConstantsFile(t))
		}
	}()

	reqs := make([]oracle.RenormalizeRequest, 0, len(temps))
	for _, t := range temps {
		reqs = append(reqs, r.request(opts, data.Structure, data.SupercellMatrix, oracle.RenormalizeRequest{
			ClusterSpace:   dir.Path(artifacts.ClusterSpaceFile),
			ForceConstants: dir.Path(artifacts.ForceConstantsFile),
			Parameters:     params,
			Temperature:    t,
			Output:         dir.Path(artifacts.ScratchForceConstantsFile(t)),
		}))
	}
	first, err := r.renormalizeAll(ctx, opts.Workers, reqs)
	if err != nil {
		return Result{}, err
	}

	var (
		result  Result
		direct  []oracle.RenormRecord
		coupled []oracle.RenormRecord
	)
	for i, rec := range first {
		if rec == nil {
			result.Dropped = append(result.Dropped, temps[i])
			logger.Info("renormalization returned no solution; dropping temperature",
				logging.Temperature(temps[i]))
			continue
		}
		if rec.NImaginary > 0 || opts.BulkModulus == nil || !opts.WithThermalExpansion {
			direct = append(direct, *rec)
			continue
		}
		coupled = append(coupled, *rec)
	}
	if len(coupled) == 1 && coupled[0].Temperature == 0 {
		direct = append(direct, coupled[0])
		coupled = nil
	}

	var solutions []solution
	for _, rec := range direct {
		if err := dir.Rename(artifacts.ScratchForceConstantsFile(rec.Temperature), artifacts.RenormForceConstantsFile(rec.Temperature)); err != nil {
			return Result{}, err
		}
		rec.ForceConstants = dir.Path(artifacts.RenormForceConstantsFile(rec.Temperature))
		solutions = append(solutions, solution{record: rec, structure: data.Structure})
		result.Direct = append(result.Direct, rec.Temperature)
	}

	if len(coupled) > 0 {
		corrected, dropped, err := r.expansionPass(ctx, dir, opts, data, params, coupled)
		if err != nil {
			return Result{}, err
		}
		for _, s := range corrected {
			result.Corrected = append(result.Corrected, s.record.Temperature)
		}
		result.Dropped = append(result.Dropped, dropped...)
		solutions = append(solutions, corrected...)
	}

	sort.SliceStable(solutions, func(i, j int) bool {
		return solutions[i].record.Temperature < solutions[j].record.Temperature
	})
	sort.Float64s(result.Direct)
	sort.Float64s(result.Dropped)

	for _, s := range solutions {
		rec := s.record
		if err := dir.WriteParameters(artifacts.RenormParametersFile(rec.Temperature), rec.Parameters); err != nil {
			return Result{}, err
		}
		if rec.NImaginary > 0 {
			logging.WarnWithContext(logger, "imaginary modes after renormalization; skipping phonopy export",
				"renorm_imaginary_modes",
				logging.Temperature(rec.Temperature),
				logging.Int("n_imaginary", rec.NImaginary),
				logging.String(logging.FieldErrorHint, "thermal expansion coupling may be invalid at this temperature"),
				logging.String(logging.FieldImpact, "no "+artifacts.RenormSecondOrderFile(rec.Temperature)),
			)
		} else if err := r.oracle.Export(ctx, oracle.ExportRequest{
			Structure:      s.structure,
			ForceConstants: rec.ForceConstants,
			Format:         oracle.FormatPhonopy,
			Order:          2,
			Output:         dir.Path(artifacts.RenormSecondOrderFile(rec.Temperature)),
		}); err != nil {
			return Result{}, err
		}
		result.Records = append(result.Records, rec)
		point := rec.Point()
		point.ExpansionCorrected = s.corrected
		result.Thermal.Append(point)
	}

	if err := dir.WriteJSON(artifacts.ThermalDataRenormFile, result.Thermal); err != nil {
		return Result{}, err
	}

	logger.Info("renormalization complete",
		logging.Int("requested", len(temps)),
		logging.Floats("direct", result.Direct),
		logging.Floats("corrected", result.Corrected),
		logging.Floats("dropped", result.Dropped),
	)
	return result, nil
}

// expansionPass couples the records to thermal expansion: it integrates the
// expansion curve over the sorted temperatures, asks the oracle for the
// expanded geometry and renormalizes again on it.
func (r *Renormalizer) expansionPass(ctx context.Context, dir *artifacts.Dir, opts Options, data artifacts.StructureData, params []float64, coupled []oracle.RenormRecord) ([]solution, []float64, error) {
	sort.Slice(coupled, func(i, j int) bool { return coupled[i].Temperature < coupled[j].Temperature })

	temps := make([]float64, len(coupled))
	alpha := make([]float64, len(coupled))
	for i, rec := range coupled {
		temps[i] = rec.Temperature
		alpha[i] = rec.ThermalExpansion
	}
	fractions, err := ExpansionFractions(temps, alpha)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrExternalTool, "renorm", "expansion", "", err)
	}

	targets := make([]oracle.ExpandTarget, len(coupled))
	for i, t := range temps {
		targets[i] = oracle.ExpandTarget{
			Temperature:       t,
			ExpansionFraction: fractions[i],
			ClusterSpace:      dir.Path(artifacts.ExpandedClusterSpaceFile(t)),
			ForceConstants:    dir.Path(artifacts.ExpandedForceConstantsFile(t)),
		}
	}
	expanded, err := r.oracle.Expand(ctx, oracle.ExpandRequest{
		Structure:       data.Structure,
		SupercellMatrix: data.SupercellMatrix,
		ForceConstants:  dir.Path(artifacts.ForceConstantsFile),
		Targets:         targets,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(expanded.Structures) != len(targets) {
		return nil, nil, services.Wrap(services.ErrExternalTool, "renorm", "expansion",
			fmt.Sprintf("expected %d expanded structures, got %d", len(targets), len(expanded.Structures)), nil)
	}

	reqs := make([]oracle.RenormalizeRequest, len(targets))
	for i, target := range targets {
		reqs[i] = r.request(opts, expanded.Structures[i], data.SupercellMatrix, oracle.RenormalizeRequest{
			ClusterSpace:   target.ClusterSpace,
			ForceConstants: target.ForceConstants,
			Parameters:     params,
			Temperature:    target.Temperature,
			Output:         dir.Path(artifacts.RenormForceConstantsFile(target.Temperature)),
		})
	}
	second, err := r.renormalizeAll(ctx, opts.Workers, reqs)
	if err != nil {
		return nil, nil, err
	}

	var (
		out     []solution
		dropped []float64
	)
	for i, rec := range second {
		if rec == nil {
			dropped = append(dropped, temps[i])
			logging.WarnWithContext(logging.WithContext(ctx, r.logger), "expanded renormalization returned no solution; dropping temperature",
				"renorm_dropped",
				logging.Temperature(temps[i]),
				logging.String(logging.FieldImpact, "temperature missing from renormalized results"),
			)
			continue
		}
		rec.ExpansionRatio = fractions[i]
		out = append(out, solution{record: *rec, structure: expanded.Structures[i], corrected: true})
	}
	return out, dropped, nil
}

func (r *Renormalizer) request(opts Options, s structure.Structure, m structure.Matrix, req oracle.RenormalizeRequest) oracle.RenormalizeRequest {
	req.Structure = s
	req.SupercellMatrix = m
	req.NConfigs = opts.NConfigs
	req.ConvergenceThreshold = opts.ConvergenceThreshold
	req.ImaginaryTol = opts.ImaginaryTol
	req.BulkModulus = opts.BulkModulus
	return req
}

// renormalizeAll runs reqs on at most workers goroutines. Results are indexed
// like reqs regardless of completion order; the first error cancels the rest.
func (r *Renormalizer) renormalizeAll(ctx context.Context, workers int, reqs []oracle.RenormalizeRequest) ([]*oracle.RenormRecord, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]*oracle.RenormRecord, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			tctx := services.WithTemperature(gctx, req.Temperature)
			logging.WithContext(tctx, r.logger).Debug("renormalizing")
			rec, err := r.oracle.Renormalize(tctx, req)
			if err != nil {
				return fmt.Errorf("renormalize at %s K: %w", artifacts.FormatTemperature(req.Temperature), err)
			}
			if rec != nil {
				rec.Temperature = req.Temperature
				rec.ForceConstants = req.Output
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func uniqueTemperatures(temps []float64) []float64 {
	seen := make(map[float64]struct{}, len(temps))
	out := make([]float64, 0, len(temps))
	for _, t := range temps {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
