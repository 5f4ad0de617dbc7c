package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"latdyn/internal/artifacts"
	"latdyn/internal/oracle"
)

// FakeOracle satisfies every oracle interface the pipeline consumes. Each hook
// is optional; the default behavior writes the files a real helper would and
// returns plausible values.
type FakeOracle struct {
	CutoffsFunc     func(oracle.CutoffsRequest) ([][]float64, error)
	FitFunc         func(oracle.FitRequest) (oracle.FitResponse, error)
	HarmonicFunc    func(oracle.HarmonicRequest) (oracle.HarmonicResponse, error)
	AnharmonicFunc  func(oracle.AnharmonicRequest) (oracle.AnharmonicResponse, error)
	RenormalizeFunc func(oracle.RenormalizeRequest) (*oracle.RenormRecord, error)
	ExpandFunc      func(oracle.ExpandRequest) (oracle.ExpandResponse, error)
	PhononFunc      func(oracle.PhononRequest) (oracle.PhononResponse, error)

	// NImaginary is reported by the default harmonic and renormalize hooks.
	NImaginary int

	mu    sync.Mutex
	calls []string
	reqs  []any
}

func (f *FakeOracle) record(op string, req any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	f.reqs = append(f.reqs, req)
}

// Calls returns the operations invoked so far, in call order.
func (f *FakeOracle) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times op was invoked.
func (f *FakeOracle) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// Requests returns the recorded requests for op.
func (f *FakeOracle) Requests(op string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for i, c := range f.calls {
		if c == op {
			out = append(out, f.reqs[i])
		}
	}
	return out
}

func (f *FakeOracle) Cutoffs(_ context.Context, req oracle.CutoffsRequest) ([][]float64, error) {
	f.record(oracle.OpCutoffs, req)
	if f.CutoffsFunc != nil {
		return f.CutoffsFunc(req)
	}
	return [][]float64{{4.0}, {5.0, 3.0}}, nil
}

func (f *FakeOracle) Fit(_ context.Context, req oracle.FitRequest) (oracle.FitResponse, error) {
	f.record(oracle.OpFit, req)
	if f.FitFunc != nil {
		return f.FitFunc(req)
	}
	if err := touch(req.ForceConstantsPath); err != nil {
		return oracle.FitResponse{}, err
	}
	if err := touch(req.ClusterSpacePath); err != nil {
		return oracle.FitResponse{}, err
	}
	fcs := req.ForceConstantsPath
	return oracle.FitResponse{
		ForceConstants: &fcs,
		ClusterSpace:   req.ClusterSpacePath,
		Parameters:     []float64{0.5, -0.25, 0.125},
		BestCutoff:     req.Cutoffs[0],
		Diagnostics:    map[string]any{"rmse_test": 0.01},
	}, nil
}

func (f *FakeOracle) Harmonic(_ context.Context, req oracle.HarmonicRequest) (oracle.HarmonicResponse, error) {
	f.record(oracle.OpHarmonic, req)
	if f.HarmonicFunc != nil {
		return f.HarmonicFunc(req)
	}
	var thermal artifacts.ThermalData
	for _, t := range req.Temperatures {
		thermal.Temperature = append(thermal.Temperature, t)
		thermal.FreeEnergy = append(thermal.FreeEnergy, -t/1000)
		thermal.Entropy = append(thermal.Entropy, t/100)
		thermal.HeatCapacity = append(thermal.HeatCapacity, 24.9)
	}
	return oracle.HarmonicResponse{Thermal: thermal, NImaginary: f.NImaginary}, nil
}

func (f *FakeOracle) Anharmonic(_ context.Context, req oracle.AnharmonicRequest) (oracle.AnharmonicResponse, error) {
	f.record(oracle.OpAnharmonic, req)
	if f.AnharmonicFunc != nil {
		return f.AnharmonicFunc(req)
	}
	var thermal artifacts.ThermalData
	for range req.Temperatures {
		thermal.Gruneisen = append(thermal.Gruneisen, 1.1)
		if req.BulkModulus != nil {
			thermal.ThermalExpansion = append(thermal.ThermalExpansion, 1e-5)
		}
	}
	return oracle.AnharmonicResponse{Thermal: thermal}, nil
}

func (f *FakeOracle) Renormalize(_ context.Context, req oracle.RenormalizeRequest) (*oracle.RenormRecord, error) {
	f.record(oracle.OpRenormalize, req)
	if f.RenormalizeFunc != nil {
		return f.RenormalizeFunc(req)
	}
	if err := touch(req.Output); err != nil {
		return nil, err
	}
	return &oracle.RenormRecord{
		Temperature:      req.Temperature,
		ForceConstants:   req.Output,
		Parameters:       []float64{req.Temperature, 1},
		NImaginary:       f.NImaginary,
		FreeEnergy:       -req.Temperature / 1000,
		Entropy:          req.Temperature / 100,
		HeatCapacity:     24.9,
		Gruneisen:        1.1,
		ThermalExpansion: 1e-5,
	}, nil
}

func (f *FakeOracle) Expand(_ context.Context, req oracle.ExpandRequest) (oracle.ExpandResponse, error) {
	f.record(oracle.OpExpand, req)
	if f.ExpandFunc != nil {
		return f.ExpandFunc(req)
	}
	resp := oracle.ExpandResponse{}
	for _, target := range req.Targets {
		if err := touch(target.ClusterSpace); err != nil {
			return oracle.ExpandResponse{}, err
		}
		if err := touch(target.ForceConstants); err != nil {
			return oracle.ExpandResponse{}, err
		}
		expanded := req.Structure.Clone()
		scale := 1 + target.ExpansionFraction
		for i := range expanded.Lattice {
			for j := range expanded.Lattice[i] {
				expanded.Lattice[i][j] *= scale
			}
		}
		resp.Structures = append(resp.Structures, expanded)
	}
	return resp, nil
}

func (f *FakeOracle) Phonon(_ context.Context, req oracle.PhononRequest) (oracle.PhononResponse, error) {
	f.record(oracle.OpPhonon, req)
	if f.PhononFunc != nil {
		return f.PhononFunc(req)
	}
	tag, _ := json.Marshal(req.ForceConstants)
	return oracle.PhononResponse{
		DOS:                  json.RawMessage(`{"kind":"dos","fcs":` + string(tag) + `}`),
		BandStructureUniform: json.RawMessage(`{"kind":"uniform","fcs":` + string(tag) + `}`),
		BandStructureLine:    json.RawMessage(`{"kind":"line","fcs":` + string(tag) + `}`),
		ForceConstants:       json.RawMessage(`{"kind":"fcs","fcs":` + string(tag) + `}`),
	}, nil
}

func (f *FakeOracle) Export(_ context.Context, req oracle.ExportRequest) error {
	f.record(oracle.OpExport, req)
	return touch(req.Output)
}

func touch(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte("fake\n"), 0o644)
}
