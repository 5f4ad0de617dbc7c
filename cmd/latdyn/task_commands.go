package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"latdyn/internal/artifacts"
	"latdyn/internal/collect"
	"latdyn/internal/fitting"
	"latdyn/internal/logging"
	"latdyn/internal/persist"
	"latdyn/internal/renorm"
	"latdyn/internal/services"
	"latdyn/internal/shengbte"
	"latdyn/internal/store"
	"latdyn/internal/taskspec"
)

// defaultSpecFile is read from the working directory when --spec is omitted.
const defaultSpecFile = "spec.yaml"

func specPath(flag string, dir *artifacts.Dir) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	return filepath.Join(dir.Root(), defaultSpecFile)
}

func newCollectCommand(ctx *commandContext) *cobra.Command {
	var specFlag string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Aggregate perturbed calculations into the working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runTask(cmd, "collect", func(runCtx context.Context, env taskEnv) error {
				spec, err := taskspec.Load(specPath(specFlag, env.dir))
				if err != nil {
					return err
				}
				data, err := collect.New(env.logger).Run(runCtx, env.dir, spec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Collected %d samples for %s\n",
					len(spec.PerturbedTasks), data.Structure.ReducedFormula())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&specFlag, "spec", "", "Task spec file (default: <dir>/spec.yaml)")
	return cmd
}

func newFitCommand(ctx *commandContext) *cobra.Command {
	var cutoffFlags []string
	var separateFit bool
	var imaginaryTol float64
	var fitMethod string
	var bulkModulus float64

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit force constants and compute harmonic and anharmonic properties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runTask(cmd, "fit", func(runCtx context.Context, env taskEnv) error {
				opts := fitting.OptionsFromConfig(env.cfg)
				if len(cutoffFlags) > 0 {
					cutoffs, err := parseCutoffs(cutoffFlags)
					if err != nil {
						return err
					}
					opts.Cutoffs = cutoffs
				}
				flags := cmd.Flags()
				if flags.Changed("separate-fit") {
					opts.SeparateFit = separateFit
				}
				if flags.Changed("imaginary-tol") {
					opts.ImaginaryTol = imaginaryTol
				}
				if flags.Changed("fit-method") {
					opts.FitMethod = fitMethod
				}
				if flags.Changed("bulk-modulus") {
					opts.BulkModulus = &bulkModulus
				}

				o, err := ctx.deps.newOracle(env.cfg, env.dir)
				if err != nil {
					return err
				}
				result, err := fitting.New(o, env.logger).Run(runCtx, env.dir, opts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Best cutoff: %v\n", result.Fitting.BestCutoff)
				fmt.Fprintf(out, "Imaginary modes: %d\n", result.Fitting.NImaginary)
				fmt.Fprintf(out, "Transport export: %s\n", yesNo(result.Exported))
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&cutoffFlags, "cutoffs", nil, "Trial cutoff set, comma separated per order (repeatable)")
	cmd.Flags().BoolVar(&separateFit, "separate-fit", false, "Fit second order before higher orders")
	cmd.Flags().Float64Var(&imaginaryTol, "imaginary-tol", 0, "Imaginary-mode tolerance in THz")
	cmd.Flags().StringVar(&fitMethod, "fit-method", "", "Fitting method passed to the oracle")
	cmd.Flags().Float64Var(&bulkModulus, "bulk-modulus", 0, "Bulk modulus in GPa; enables thermal expansion")
	return cmd
}

func newRenormalizeCommand(ctx *commandContext) *cobra.Command {
	var temperatures []float64
	var workers int
	var bulkModulus float64
	var thermalExpansion bool

	cmd := &cobra.Command{
		Use:   "renormalize",
		Short: "Renormalize force constants at finite temperature",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runTask(cmd, "renormalize", func(runCtx context.Context, env taskEnv) error {
				opts := renorm.OptionsFromConfig(env.cfg)
				flags := cmd.Flags()
				if flags.Changed("temperatures") {
					opts.Temperatures = temperatures
				}
				if flags.Changed("workers") {
					opts.Workers = workers
				}
				if flags.Changed("bulk-modulus") {
					opts.BulkModulus = &bulkModulus
				}
				if flags.Changed("thermal-expansion") {
					opts.WithThermalExpansion = thermalExpansion
				}

				o, err := ctx.deps.newOracle(env.cfg, env.dir)
				if err != nil {
					return err
				}
				result, err := renorm.New(o, env.logger).Run(runCtx, env.dir, opts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Renormalized: %s\n", formatTemperatures(result.Direct))
				fmt.Fprintf(out, "Expansion corrected: %s\n", formatTemperatures(result.Corrected))
				if len(result.Dropped) > 0 {
					fmt.Fprintf(out, "Dropped: %s\n", formatTemperatures(result.Dropped))
				}
				return nil
			})
		},
	}
	cmd.Flags().Float64SliceVar(&temperatures, "temperatures", nil, "Temperatures in K")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent renormalizations")
	cmd.Flags().Float64Var(&bulkModulus, "bulk-modulus", 0, "Bulk modulus in GPa")
	cmd.Flags().BoolVar(&thermalExpansion, "thermal-expansion", false, "Couple renormalization to thermal expansion")
	return cmd
}

func newForceConstantsToDbCommand(ctx *commandContext) *cobra.Command {
	var specFlag string
	var renormalized bool
	var meshDensity float64
	var fields []string

	cmd := &cobra.Command{
		Use:   "fc-to-db",
		Short: "Store force constants and phonon properties in the document store",
		RunE: func(cmd *cobra.Command, args []string) error {
			task := "fc-to-db"
			if renormalized {
				task = "fc-renorm-to-db"
			}
			return ctx.runTask(cmd, task, func(runCtx context.Context, env taskEnv) error {
				path := specPath(specFlag, env.dir)
				spec, err := taskspec.Load(path)
				if err != nil {
					return err
				}
				opts := persist.OptionsFromConfig(env.cfg)
				if cmd.Flags().Changed("mesh-density") {
					opts.MeshDensity = meshDensity
				}
				if opts.AdditionalFields, err = parseFields(fields); err != nil {
					return err
				}

				o, err := ctx.deps.newOracle(env.cfg, env.dir)
				if err != nil {
					return err
				}
				st, err := store.Open(env.cfg)
				if err != nil {
					return err
				}
				defer st.Close()

				adapter := persist.New(o, st, env.logger)
				var update taskspec.Update
				if renormalized {
					update, err = adapter.ForceConstantsRenormToDb(runCtx, env.dir, spec, opts)
				} else {
					update, err = adapter.ForceConstantsToDb(runCtx, env.dir, spec, opts)
				}
				if err != nil {
					return err
				}
				update.Apply(spec)
				if err := spec.Save(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Fitting id: %d\n", update.FittingID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&specFlag, "spec", "", "Task spec file (default: <dir>/spec.yaml)")
	cmd.Flags().BoolVar(&renormalized, "renormalized", false, "Store temperature-renormalized force constants")
	cmd.Flags().Float64Var(&meshDensity, "mesh-density", 0, "Phonon mesh density")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Additional document field key=value (repeatable)")
	return cmd
}

func newShengBTECommand(ctx *commandContext) *cobra.Command {
	var temperature string
	var overrides []string
	var scaleBroad float64
	var isotopes bool
	var nonanalytic bool
	var fromDir string

	cmd := &cobra.Command{
		Use:   "shengbte",
		Short: "Run ShengBTE on the exported force constants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runTask(cmd, "shengbte", func(runCtx context.Context, env taskEnv) error {
				opts, err := shengbte.OptionsFromConfig(env.cfg)
				if err != nil {
					return err
				}
				flags := cmd.Flags()
				if flags.Changed("temperature") {
					if opts.Temperature, err = shengbte.ParseTemperatureFlag(temperature); err != nil {
						return services.Wrap(services.ErrValidation, "shengbte", "flags", "--temperature", err)
					}
				}
				if flags.Changed("scalebroad") {
					opts.ScaleBroad = scaleBroad
				}
				if flags.Changed("isotopes") {
					opts.Isotopes = isotopes
				}
				if flags.Changed("nonanalytic") {
					opts.Nonanalytic = nonanalytic
				}

				if strings.TrimSpace(fromDir) != "" {
					copied, err := env.dir.ImportFrom(fromDir, shengbte.RequiredInputs...)
					if err != nil {
						return err
					}
					if len(copied) > 0 {
						env.logger.Info("imported force constants",
							logging.String("from", fromDir),
							logging.Int("files", len(copied)),
						)
					}
				}

				data, err := env.dir.LoadStructureData()
				if err != nil {
					return err
				}
				control, err := shengbte.NewControl(data, opts)
				if err != nil {
					return err
				}
				for _, raw := range overrides {
					key, value, ok := strings.Cut(raw, "=")
					if !ok {
						return services.Wrap(services.ErrValidation, "shengbte", "flags", fmt.Sprintf("--set %q: expected key=value", raw), nil)
					}
					if err := control.Set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
						return err
					}
				}

				command, err := env.cfg.ShengBTECommand()
				if err != nil {
					return services.Wrap(services.ErrConfiguration, "shengbte", "init", "", err)
				}
				runner, err := shengbte.NewRunner(command, env.logger, ctx.deps.shengbteOptions...)
				if err != nil {
					return err
				}
				points, err := runner.Run(runCtx, env.dir, control)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKappaTable(points))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&temperature, "temperature", "", "Temperature: 300, min:max:step, or a comma separated list")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "CONTROL override key=value (repeatable)")
	cmd.Flags().Float64Var(&scaleBroad, "scalebroad", 0, "Gaussian smearing scale factor")
	cmd.Flags().BoolVar(&isotopes, "isotopes", false, "Include isotope scattering")
	cmd.Flags().BoolVar(&nonanalytic, "nonanalytic", false, "Apply the non-analytic correction")
	cmd.Flags().StringVar(&fromDir, "from", "", "Fitting directory to import FORCE_CONSTANTS_2ND/3RD from")
	return cmd
}

func newShengBTEToDbCommand(ctx *commandContext) *cobra.Command {
	var specFlag string
	var fields []string

	cmd := &cobra.Command{
		Use:   "shengbte-to-db",
		Short: "Store the lattice thermal conductivity in the document store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runTask(cmd, "shengbte-to-db", func(runCtx context.Context, env taskEnv) error {
				spec, err := taskspec.Load(specPath(specFlag, env.dir))
				if err != nil {
					return err
				}
				opts := persist.OptionsFromConfig(env.cfg)
				if opts.AdditionalFields, err = parseFields(fields); err != nil {
					return err
				}
				st, err := store.Open(env.cfg)
				if err != nil {
					return err
				}
				defer st.Close()

				id, err := persist.New(nil, st, env.logger).ShengBTEToDb(runCtx, env.dir, spec, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Document id: %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&specFlag, "spec", "", "Task spec file (default: <dir>/spec.yaml)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Additional document field key=value (repeatable)")
	return cmd
}

func parseCutoffs(values []string) ([][]float64, error) {
	out := make([][]float64, 0, len(values))
	for _, raw := range values {
		parts := strings.Split(raw, ",")
		set := make([]float64, 0, len(parts))
		for _, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, "fit", "flags", fmt.Sprintf("--cutoffs %q", raw), err)
			}
			set = append(set, v)
		}
		out = append(out, set)
	}
	return out, nil
}

func formatTemperatures(temps []float64) string {
	if len(temps) == 0 {
		return "none"
	}
	parts := make([]string, len(temps))
	for i, t := range temps {
		parts[i] = artifacts.FormatTemperature(t) + " K"
	}
	return strings.Join(parts, ", ")
}
