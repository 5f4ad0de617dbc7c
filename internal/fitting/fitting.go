package fitting

import (
	"context"
	"fmt"
	"log/slog"

	"latdyn/internal/artifacts"
	"latdyn/internal/config"
	"latdyn/internal/logging"
	"latdyn/internal/oracle"
	"latdyn/internal/services"
	"latdyn/internal/structure"
)

// Oracle is the subset of the helper protocol the fitter drives.
type Oracle interface {
	Cutoffs(ctx context.Context, req oracle.CutoffsRequest) ([][]float64, error)
	Fit(ctx context.Context, req oracle.FitRequest) (oracle.FitResponse, error)
	Harmonic(ctx context.Context, req oracle.HarmonicRequest) (oracle.HarmonicResponse, error)
	Anharmonic(ctx context.Context, req oracle.AnharmonicRequest) (oracle.AnharmonicResponse, error)
	Export(ctx context.Context, req oracle.ExportRequest) error
}

// Options controls one fitting run.
type Options struct {
	// Cutoffs lists trial cutoff sets. Empty asks the oracle to generate them.
	Cutoffs      [][]float64
	SeparateFit  bool
	ImaginaryTol float64
	FitMethod    string
	// BulkModulus in GPa enables thermal expansion.
	BulkModulus  *float64
	Temperatures []float64
}

// OptionsFromConfig returns the configured fitting defaults.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Cutoffs:      cfg.Fitting.Cutoffs,
		SeparateFit:  cfg.Fitting.SeparateFit,
		ImaginaryTol: cfg.Fitting.ImaginaryTol,
		FitMethod:    cfg.Fitting.FitMethod,
		BulkModulus:  cfg.Fitting.BulkModulus,
		Temperatures: cfg.Fitting.Temperatures,
	}
}

// Result summarizes a successful fit.
type Result struct {
	Fitting  artifacts.FittingData
	Thermal  artifacts.ThermalData
	Exported bool
}

// Fitter implements the fitting task.
type Fitter struct {
	oracle Oracle
	logger *slog.Logger
}

// New constructs a fitter.
func New(o Oracle, logger *slog.Logger) *Fitter {
	return &Fitter{
		oracle: o,
		logger: logging.NewComponentLogger(logger, "fitting"),
	}
}

// Run fits force constants from the artifacts in dir and writes
// fitting_data.json, thermal_data_qha.json and parameters.txt. The oracle
// writes force_constants.fcs and cluster_space.cs itself.
func (f *Fitter) Run(ctx context.Context, dir *artifacts.Dir, opts Options) (Result, error) {
	logger := logging.WithContext(ctx, f.logger)

	data, err := dir.LoadStructureData()
	if err != nil {
		return Result{}, err
	}
	structures, forces, err := dir.LoadSamples()
	if err != nil {
		return Result{}, err
	}

	cutoffs := opts.Cutoffs
	if len(cutoffs) == 0 {
		cutoffs, err = f.oracle.Cutoffs(ctx, oracle.CutoffsRequest{Supercell: data.SupercellStructure})
		if err != nil {
			return Result{}, err
		}
		logger.Debug("generated trial cutoffs", logging.Int("trials", len(cutoffs)))
	}

	samples, err := alignSamples(data.SupercellStructure, structures, forces)
	if err != nil {
		return Result{}, err
	}

	fit, err := f.oracle.Fit(ctx, oracle.FitRequest{
		Structure:          data.Structure,
		SupercellMatrix:    data.SupercellMatrix,
		Supercell:          data.SupercellStructure,
		Samples:            samples,
		Cutoffs:            cutoffs,
		SeparateFit:        opts.SeparateFit,
		ImaginaryTol:       opts.ImaginaryTol,
		FitMethod:          opts.FitMethod,
		ForceConstantsPath: dir.Path(artifacts.ForceConstantsFile),
		ClusterSpacePath:   dir.Path(artifacts.ClusterSpaceFile),
	})
	if err != nil {
		return Result{}, err
	}
	if fit.ForceConstants == nil {
		return Result{}, &services.FittingFailedError{
			Reason: fmt.Sprintf("no solution across %d cutoff trials", len(cutoffs)),
		}
	}
	fcsPath := *fit.ForceConstants

	if err := dir.WriteParameters(artifacts.ParametersFile, fit.Parameters); err != nil {
		return Result{}, err
	}

	harmonic, err := f.oracle.Harmonic(ctx, oracle.HarmonicRequest{
		Structure:       data.Structure,
		SupercellMatrix: data.SupercellMatrix,
		ForceConstants:  fcsPath,
		Temperatures:    opts.Temperatures,
		ImaginaryTol:    opts.ImaginaryTol,
	})
	if err != nil {
		return Result{}, err
	}
	anharmonic, err := f.oracle.Anharmonic(ctx, oracle.AnharmonicRequest{
		Structure:       data.Structure,
		SupercellMatrix: data.SupercellMatrix,
		ForceConstants:  fcsPath,
		Temperatures:    harmonic.Thermal.Temperature,
		HeatCapacity:    harmonic.Thermal.HeatCapacity,
		NImaginary:      harmonic.NImaginary,
		BulkModulus:     opts.BulkModulus,
	})
	if err != nil {
		return Result{}, err
	}
	thermal := harmonic.Thermal
	thermal.Merge(anharmonic.Thermal)

	fitting := artifacts.FittingData{
		Cutoffs:      cutoffs,
		BestCutoff:   fit.BestCutoff,
		FitMethod:    opts.FitMethod,
		SeparateFit:  opts.SeparateFit,
		ImaginaryTol: opts.ImaginaryTol,
		NImaginary:   harmonic.NImaginary,
		Diagnostics:  fit.Diagnostics,
	}
	if err := dir.WriteJSON(artifacts.FittingDataFile, fitting); err != nil {
		return Result{}, err
	}
	if err := dir.WriteJSON(artifacts.ThermalDataQHAFile, thermal); err != nil {
		return Result{}, err
	}

	result := Result{Fitting: fitting, Thermal: thermal}
	if fitting.NImaginary == 0 {
		if err := f.export(ctx, dir, data, fcsPath); err != nil {
			return Result{}, err
		}
		result.Exported = true
	} else {
		logging.WarnWithContext(logger, "imaginary modes in fitted force constants; skipping ShengBTE and phonopy exports",
			"export_skipped",
			logging.Int("n_imaginary", fitting.NImaginary),
			logging.Float64("imaginary_tol", opts.ImaginaryTol),
			logging.String(logging.FieldErrorHint, "refit with more samples or different cutoffs"),
			logging.String(logging.FieldImpact, "no FORCE_CONSTANTS_2ND/3RD; transport cannot run"),
		)
	}

	logger.Info("force constants fitted",
		logging.Int("samples", len(samples)),
		logging.Int("cutoff_trials", len(cutoffs)),
		logging.Floats("best_cutoff", fit.BestCutoff),
		logging.Int("n_imaginary", fitting.NImaginary),
		logging.Bool("exported", result.Exported),
	)
	return result, nil
}

func (f *Fitter) export(ctx context.Context, dir *artifacts.Dir, data artifacts.StructureData, fcsPath string) error {
	exports := []oracle.ExportRequest{
		{Format: oracle.FormatShengBTE, Order: 3, Output: dir.Path(artifacts.ShengBTEThirdOrderFile)},
		{Format: oracle.FormatPhonopy, Order: 2, Output: dir.Path(artifacts.PhonopySecondOrderFile)},
	}
	for _, req := range exports {
		req.Structure = data.Structure
		req.ForceConstants = fcsPath
		if err := f.oracle.Export(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// alignSamples converts perturbed structures into displacements relative to
// the ideal supercell, checking that forces line up site for site.
func alignSamples(ideal structure.Structure, structures []structure.Structure, forces []artifacts.Forces) ([]oracle.FitSample, error) {
	samples := make([]oracle.FitSample, 0, len(structures))
	for i, perturbed := range structures {
		disps, err := structure.Displacements(ideal, perturbed)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "fitting", "align sample", fmt.Sprintf("sample %d", i), err)
		}
		if len(forces[i]) != len(disps) {
			return nil, services.Wrap(services.ErrValidation, "fitting", "align sample",
				fmt.Sprintf("sample %d has %d forces for %d sites", i, len(forces[i]), len(disps)), nil)
		}
		samples = append(samples, oracle.FitSample{
			Displacements: disps,
			Forces:        forces[i],
		})
	}
	return samples, nil
}
