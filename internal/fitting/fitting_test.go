package fitting_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"latdyn/internal/artifacts"
	"latdyn/internal/config"
	"latdyn/internal/fitting"
	"latdyn/internal/logging"
	"latdyn/internal/oracle"
	"latdyn/internal/services"
	"latdyn/internal/testsupport"
)

func defaultOptions() fitting.Options {
	cfg := config.Default()
	return fitting.OptionsFromConfig(&cfg)
}

func TestRunZeroImaginaryExportsBothFormats(t *testing.T) {
	dir := testsupport.WorkDir(t)
	testsupport.SeedFittingRun(t, dir, 3)
	fake := &testsupport.FakeOracle{}

	res, err := fitting.New(fake, logging.NewNop()).Run(context.Background(), dir, defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Exported {
		t.Fatal("expected exports for a real spectrum")
	}
	for _, name := range []string{
		artifacts.FittingDataFile,
		artifacts.ThermalDataQHAFile,
		artifacts.ParametersFile,
		artifacts.ForceConstantsFile,
		artifacts.ClusterSpaceFile,
		artifacts.ShengBTEThirdOrderFile,
		artifacts.PhonopySecondOrderFile,
	} {
		if !dir.Exists(name) {
			t.Fatalf("expected %s to be written", name)
		}
	}

	params, err := dir.ReadParameters(artifacts.ParametersFile)
	if err != nil {
		t.Fatalf("ReadParameters: %v", err)
	}
	if diff := cmp.Diff([]float64{0.5, -0.25, 0.125}, params); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}

	var stored artifacts.FittingData
	if err := dir.ReadJSON(artifacts.FittingDataFile, &stored); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if stored.FitMethod != "rfe" || stored.ImaginaryTol != 0.025 || stored.NImaginary != 0 {
		t.Fatalf("unexpected fitting data: %+v", stored)
	}
	if len(stored.Cutoffs) != 2 {
		t.Fatalf("expected generated cutoffs to be recorded, got %v", stored.Cutoffs)
	}

	if got := res.Thermal.Len(); got != len(config.QHATemperatures()) {
		t.Fatalf("expected %d thermal rows, got %d", len(config.QHATemperatures()), got)
	}
	if len(res.Thermal.Gruneisen) != res.Thermal.Len() {
		t.Fatal("expected anharmonic fields merged into the harmonic set")
	}
	if len(res.Thermal.ThermalExpansion) != 0 {
		t.Fatal("thermal expansion requires a bulk modulus")
	}
}

func TestRunImaginaryModesSkipExports(t *testing.T) {
	dir := testsupport.WorkDir(t)
	testsupport.SeedFittingRun(t, dir, 2)
	fake := &testsupport.FakeOracle{NImaginary: 4}

	res, err := fitting.New(fake, logging.NewNop()).Run(context.Background(), dir, defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Exported || res.Fitting.NImaginary != 4 {
		t.Fatalf("unexpected result: exported=%v n_imaginary=%d", res.Exported, res.Fitting.NImaginary)
	}
	if dir.Exists(artifacts.ShengBTEThirdOrderFile) || dir.Exists(artifacts.PhonopySecondOrderFile) {
		t.Fatal("exports must be skipped with imaginary modes")
	}
	if fake.Count(oracle.OpExport) != 0 {
		t.Fatalf("expected no export calls, got %v", fake.Calls())
	}
	if !dir.Exists(artifacts.FittingDataFile) {
		t.Fatal("fitting data is still written")
	}
}

func TestRunNullFitIsFatal(t *testing.T) {
	dir := testsupport.WorkDir(t)
	testsupport.SeedFittingRun(t, dir, 2)
	fake := &testsupport.FakeOracle{
		FitFunc: func(oracle.FitRequest) (oracle.FitResponse, error) {
			return oracle.FitResponse{}, nil
		},
	}

	_, err := fitting.New(fake, logging.NewNop()).Run(context.Background(), dir, defaultOptions())
	var failed *services.FittingFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected FittingFailedError, got %v", err)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool marker, got %v", err)
	}
	if dir.Exists(artifacts.FittingDataFile) || dir.Exists(artifacts.ParametersFile) {
		t.Fatal("nothing should be persisted after a failed fit")
	}
	if fake.Count(oracle.OpHarmonic) != 0 {
		t.Fatal("harmonic properties must not be computed after a failed fit")
	}
}

func TestRunExplicitCutoffsAndBulkModulus(t *testing.T) {
	dir := testsupport.WorkDir(t)
	testsupport.SeedFittingRun(t, dir, 2)
	fake := &testsupport.FakeOracle{}

	bulk := 98.0
	opts := defaultOptions()
	opts.Cutoffs = [][]float64{{6.0, 4.0, 3.5}}
	opts.BulkModulus = &bulk
	opts.Temperatures = []float64{0, 300}

	res, err := fitting.New(fake, logging.NewNop()).Run(context.Background(), dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fake.Count(oracle.OpCutoffs) != 0 {
		t.Fatal("explicit cutoffs must not be regenerated")
	}

	fitReq := fake.Requests(oracle.OpFit)[0].(oracle.FitRequest)
	if diff := cmp.Diff(opts.Cutoffs, fitReq.Cutoffs); diff != "" {
		t.Fatalf("cutoffs mismatch (-want +got):\n%s", diff)
	}
	if len(fitReq.Samples) != 2 || len(fitReq.Samples[0].Displacements) != 8 {
		t.Fatalf("expected 2 aligned 8-site samples, got %d", len(fitReq.Samples))
	}
	if fitReq.Samples[0].Displacements[0][0] <= 0 {
		t.Fatalf("expected positive x displacement on site 0, got %v", fitReq.Samples[0].Displacements[0])
	}

	anh := fake.Requests(oracle.OpAnharmonic)[0].(oracle.AnharmonicRequest)
	if anh.BulkModulus == nil || *anh.BulkModulus != bulk {
		t.Fatal("expected bulk modulus to reach the anharmonic call")
	}
	if diff := cmp.Diff([]float64{24.9, 24.9}, anh.HeatCapacity); diff != "" {
		t.Fatalf("heat capacity should come from the harmonic call (-want +got):\n%s", diff)
	}
	if len(res.Thermal.ThermalExpansion) != 2 {
		t.Fatalf("expected thermal expansion rows, got %v", res.Thermal.ThermalExpansion)
	}
}

func TestRunMissingArtifacts(t *testing.T) {
	dir := testsupport.WorkDir(t)
	_, err := fitting.New(&testsupport.FakeOracle{}, logging.NewNop()).Run(context.Background(), dir, defaultOptions())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
