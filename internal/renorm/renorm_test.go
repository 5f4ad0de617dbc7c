package renorm_test

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"latdyn/internal/artifacts"
	"latdyn/internal/logging"
	"latdyn/internal/oracle"
	"latdyn/internal/renorm"
	"latdyn/internal/services"
	"latdyn/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setup(t *testing.T) *artifacts.Dir {
	t.Helper()
	dir := testsupport.WorkDir(t)
	testsupport.SeedFittingRun(t, dir, 2)
	testsupport.SeedFitOutputs(t, dir, []float64{0.5, -0.25})
	return dir
}

func options(temps ...float64) renorm.Options {
	return renorm.Options{
		Temperatures:         temps,
		Workers:              2,
		NConfigs:             50,
		ConvergenceThreshold: 0.01,
		ImaginaryTol:         0.025,
		WithThermalExpansion: true,
	}
}

func bulk(v float64) *float64 { return &v }

func touch(path string) {
	_ = os.WriteFile(path, []byte("fcs\n"), 0o644)
}

func TestRunWithoutBulkModulusWritesDirect(t *testing.T) {
	dir := setup(t)
	fake := &testsupport.FakeOracle{}

	res, err := renorm.New(fake, logging.NewNop()).Run(context.Background(), dir, options(300, 0, 100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 100, 300}, res.Direct); diff != "" {
		t.Fatalf("direct mismatch (-want +got):\n%s", diff)
	}
	if len(res.Corrected) != 0 || fake.Count(oracle.OpExpand) != 0 {
		t.Fatal("no expansion pass without a bulk modulus")
	}
	if fake.Count(oracle.OpRenormalize) != 3 {
		t.Fatalf("expected 3 renormalizations, got %d", fake.Count(oracle.OpRenormalize))
	}
	for _, temp := range []float64{0, 100, 300} {
		for _, name := range []string{
			artifacts.RenormForceConstantsFile(temp),
			artifacts.RenormParametersFile(temp),
			artifacts.RenormSecondOrderFile(temp),
		} {
			if !dir.Exists(name) {
				t.Fatalf("expected %s", name)
			}
		}
		if dir.Exists(artifacts.ScratchForceConstantsFile(temp)) {
			t.Fatalf("scratch file for %v K left behind", temp)
		}
	}

	var thermal artifacts.ThermalData
	if err := dir.ReadJSON(artifacts.ThermalDataRenormFile, &thermal); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 100, 300}, thermal.Temperature); diff != "" {
		t.Fatalf("thermal temperatures must be ascending (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{false, false, false}, thermal.ExpansionCorrected); diff != "" {
		t.Fatalf("direct rows must not be marked corrected (-want +got):\n%s", diff)
	}

	params, err := dir.ReadParameters(artifacts.RenormParametersFile(300))
	if err != nil {
		t.Fatalf("ReadParameters: %v", err)
	}
	if diff := cmp.Diff([]float64{300, 1}, params); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDropsNullResults(t *testing.T) {
	dir := setup(t)
	fake := &testsupport.FakeOracle{}
	fake.RenormalizeFunc = func(req oracle.RenormalizeRequest) (*oracle.RenormRecord, error) {
		if req.Temperature == 100 {
			return nil, nil
		}
		touch(req.Output)
		return &oracle.RenormRecord{Parameters: []float64{1}}, nil
	}

	res, err := renorm.New(fake, logging.NewNop()).Run(context.Background(), dir, options(0, 100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]float64{100}, res.Dropped); diff != "" {
		t.Fatalf("dropped mismatch (-want +got):\n%s", diff)
	}
	if len(res.Records) != 1 || res.Records[0].Temperature != 0 {
		t.Fatalf("expected only the 0 K record, got %+v", res.Records)
	}
	if dir.Exists(artifacts.RenormForceConstantsFile(100)) {
		t.Fatal("dropped temperature must not produce files")
	}
}

func TestRunThermalExpansionSecondPass(t *testing.T) {
	dir := setup(t)
	fake := &testsupport.FakeOracle{}
	opts := options(300, 0, 100)
	opts.BulkModulus = bulk(100)

	res, err := renorm.New(fake, logging.NewNop()).Run(context.Background(), dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Direct) != 0 {
		t.Fatalf("expected every temperature to be corrected, direct=%v", res.Direct)
	}
	if diff := cmp.Diff([]float64{0, 100, 300}, res.Corrected); diff != "" {
		t.Fatalf("corrected mismatch (-want +got):\n%s", diff)
	}
	if got := fake.Count(oracle.OpRenormalize); got != 6 {
		t.Fatalf("expected two passes of 3 renormalizations, got %d", got)
	}

	expand := fake.Requests(oracle.OpExpand)
	if len(expand) != 1 {
		t.Fatalf("expected one expand call, got %d", len(expand))
	}
	req := expand[0].(oracle.ExpandRequest)
	var temps, fractions []float64
	for _, target := range req.Targets {
		temps = append(temps, target.Temperature)
		fractions = append(fractions, target.ExpansionFraction)
	}
	if diff := cmp.Diff([]float64{0, 100, 300}, temps); diff != "" {
		t.Fatalf("expand targets must be sorted (-want +got):\n%s", diff)
	}
	approx := cmpopts.EquateApprox(0, 1e-12)
	if diff := cmp.Diff([]float64{0, 1e-3, 3e-3}, fractions, approx); diff != "" {
		t.Fatalf("expansion fractions mismatch (-want +got):\n%s", diff)
	}

	second := fake.Requests(oracle.OpRenormalize)[3:]
	for _, raw := range second {
		r := raw.(oracle.RenormalizeRequest)
		if r.ClusterSpace != dir.Path(artifacts.ExpandedClusterSpaceFile(r.Temperature)) {
			t.Fatalf("second pass at %v K used %s", r.Temperature, r.ClusterSpace)
		}
	}
	for i, rec := range res.Records {
		if math.Abs(rec.ExpansionRatio-fractions[i]) > 1e-12 {
			t.Fatalf("record %v K expansion ratio %v, want %v", rec.Temperature, rec.ExpansionRatio, fractions[i])
		}
		if !dir.Exists(artifacts.RenormForceConstantsFile(rec.Temperature)) {
			t.Fatalf("expected force constants at %v K", rec.Temperature)
		}
	}
}

func TestRunMarksRowOrigin(t *testing.T) {
	dir := setup(t)
	fake := &testsupport.FakeOracle{}
	fake.RenormalizeFunc = func(req oracle.RenormalizeRequest) (*oracle.RenormRecord, error) {
		touch(req.Output)
		rec := &oracle.RenormRecord{
			Temperature:      req.Temperature,
			ForceConstants:   req.Output,
			Parameters:       []float64{req.Temperature},
			HeatCapacity:     24.9,
			ThermalExpansion: 1e-5,
		}
		if req.Temperature == 100 {
			rec.NImaginary = 1
		}
		return rec, nil
	}
	opts := options(0, 100, 300)
	opts.BulkModulus = bulk(100)

	res, err := renorm.New(fake, logging.NewNop()).Run(context.Background(), dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]float64{100}, res.Direct); diff != "" {
		t.Fatalf("direct mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 300}, res.Corrected); diff != "" {
		t.Fatalf("corrected mismatch (-want +got):\n%s", diff)
	}

	var thermal artifacts.ThermalData
	if err := dir.ReadJSON(artifacts.ThermalDataRenormFile, &thermal); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if diff := cmp.Diff([]float64{0, 100, 300}, thermal.Temperature); diff != "" {
		t.Fatalf("thermal temperatures mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true, false, true}, thermal.ExpansionCorrected); diff != "" {
		t.Fatalf("row origin mismatch (-want +got):\n%s", diff)
	}
}

func TestRunSingleZeroTemperatureSkipsExpansion(t *testing.T) {
	dir := setup(t)
	fake := &testsupport.FakeOracle{}
	opts := options(0)
	opts.BulkModulus = bulk(100)

	res, err := renorm.New(fake, logging.NewNop()).Run(context.Background(), dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fake.Count(oracle.OpExpand) != 0 || fake.Count(oracle.OpRenormalize) != 1 {
		t.Fatalf("degenerate case must skip expansion, calls=%v", fake.Calls())
	}
	if diff := cmp.Diff([]float64{0}, res.Direct); diff != "" {
		t.Fatalf("direct mismatch (-want +got):\n%s", diff)
	}
	if !dir.Exists(artifacts.RenormForceConstantsFile(0)) {
		t.Fatal("expected force_constants_0K.fcs")
	}
}

func TestRunImaginaryRecordsSkipExport(t *testing.T) {
	dir := setup(t)
	fake := &testsupport.FakeOracle{NImaginary: 2}
	opts := options(100, 200)
	opts.BulkModulus = bulk(100)

	res, err := renorm.New(fake, logging.NewNop()).Run(context.Background(), dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fake.Count(oracle.OpExpand) != 0 {
		t.Fatal("imaginary records cannot be coupled to thermal expansion")
	}
	if diff := cmp.Diff([]float64{100, 200}, res.Direct); diff != "" {
		t.Fatalf("direct mismatch (-want +got):\n%s", diff)
	}
	if fake.Count(oracle.OpExport) != 0 || dir.Exists(artifacts.RenormSecondOrderFile(100)) {
		t.Fatal("export must be skipped for imaginary records")
	}
	if !dir.Exists(artifacts.RenormForceConstantsFile(200)) {
		t.Fatal("force constants are still written")
	}
}

func TestRunOracleErrorIsFatal(t *testing.T) {
	dir := setup(t)
	boom := errors.New("boom")
	fake := &testsupport.FakeOracle{}
	fake.RenormalizeFunc = func(req oracle.RenormalizeRequest) (*oracle.RenormRecord, error) {
		if req.Temperature == 200 {
			return nil, services.Wrap(services.ErrExternalTool, "oracle", oracle.OpRenormalize, "", boom)
		}
		touch(req.Output)
		return &oracle.RenormRecord{}, nil
	}

	_, err := renorm.New(fake, logging.NewNop()).Run(context.Background(), dir, options(100, 200, 300))
	if !errors.Is(err, boom) || !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected wrapped oracle error, got %v", err)
	}
	if dir.Exists(artifacts.ThermalDataRenormFile) {
		t.Fatal("no thermal data after a failed run")
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	dir := setup(t)
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
		mu       sync.Mutex
		seen     []float64
	)
	fake := &testsupport.FakeOracle{}
	fake.RenormalizeFunc = func(req oracle.RenormalizeRequest) (*oracle.RenormRecord, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen = append(seen, req.Temperature)
		mu.Unlock()
		touch(req.Output)
		return &oracle.RenormRecord{}, nil
	}

	opts := options(0, 50, 100, 200, 300, 500, 700)
	res, err := renorm.New(fake, logging.NewNop()).Run(context.Background(), dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p := peak.Load(); p > int32(opts.Workers) {
		t.Fatalf("peak concurrency %d exceeds %d workers", p, opts.Workers)
	}
	if len(seen) != 7 || len(res.Records) != 7 {
		t.Fatalf("expected 7 renormalizations, got %d calls and %d records", len(seen), len(res.Records))
	}
}

func TestRunEmptyTemperatures(t *testing.T) {
	dir := setup(t)
	_, err := renorm.New(&testsupport.FakeOracle{}, logging.NewNop()).Run(context.Background(), dir, options())
	var empty *services.EmptyInputError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyInputError, got %v", err)
	}
}

func TestExpansionFractions(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-15)

	got, err := renorm.ExpansionFractions([]float64{100, 200}, []float64{2e-5, 4e-5})
	if err != nil {
		t.Fatalf("ExpansionFractions: %v", err)
	}
	// 0 K anchor: 0.5*100*2e-5, then + 0.5*100*(2e-5+4e-5).
	if diff := cmp.Diff([]float64{1e-3, 4e-3}, got, approx); diff != "" {
		t.Fatalf("fractions mismatch (-want +got):\n%s", diff)
	}

	if _, err := renorm.ExpansionFractions([]float64{200, 100}, []float64{1, 1}); err == nil {
		t.Fatal("expected error for unsorted temperatures")
	}
	if _, err := renorm.ExpansionFractions([]float64{0}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}
