package oracle

import (
	"encoding/json"

	"latdyn/internal/artifacts"
	"latdyn/internal/structure"
)

// CutoffsRequest asks for trial cutoff sets.
type CutoffsRequest struct {
	Supercell structure.Structure `json:"supercell" jsonschema:"required"`
}

// CutoffsResponse lists trial cutoffs, one radius per interaction order.
type CutoffsResponse struct {
	Cutoffs [][]float64 `json:"cutoffs" jsonschema:"required"`
}

// FitSample is one displaced supercell aligned to the ideal site order.
type FitSample struct {
	Displacements [][3]float64 `json:"displacements" jsonschema:"required"`
	Forces        [][3]float64 `json:"forces" jsonschema:"required"`
}

// FitRequest runs the force constant fit over all trial cutoffs. The helper
// writes the winning force constants and cluster space to the named paths.
type FitRequest struct {
	Structure          structure.Structure `json:"structure" jsonschema:"required"`
	SupercellMatrix    structure.Matrix    `json:"supercell_matrix" jsonschema:"required"`
	Supercell          structure.Structure `json:"supercell" jsonschema:"required"`
	Samples            []FitSample         `json:"samples" jsonschema:"required"`
	Cutoffs            [][]float64         `json:"cutoffs" jsonschema:"required"`
	SeparateFit        bool                `json:"separate_fit"`
	ImaginaryTol       float64             `json:"imaginary_tol" jsonschema:"required"`
	FitMethod          string              `json:"fit_method" jsonschema:"required"`
	ForceConstantsPath string              `json:"force_constants_path" jsonschema:"required"`
	ClusterSpacePath   string              `json:"cluster_space_path" jsonschema:"required"`
}

// FitResponse reports the fit. ForceConstants is null when no cutoff
// combination produced a solution.
type FitResponse struct {
	ForceConstants *string        `json:"force_constants" jsonschema:"required"`
	ClusterSpace   string         `json:"cluster_space,omitempty"`
	Parameters     []float64      `json:"parameters,omitempty"`
	BestCutoff     []float64      `json:"best_cutoff,omitempty"`
	Diagnostics    map[string]any `json:"diagnostics,omitempty"`
}

// HarmonicRequest evaluates harmonic properties on a temperature grid.
type HarmonicRequest struct {
	Structure       structure.Structure `json:"structure" jsonschema:"required"`
	SupercellMatrix structure.Matrix    `json:"supercell_matrix" jsonschema:"required"`
	ForceConstants  string              `json:"force_constants" jsonschema:"required"`
	Temperatures    []float64           `json:"temperatures" jsonschema:"required"`
	ImaginaryTol    float64             `json:"imaginary_tol" jsonschema:"required"`
}

// HarmonicResponse carries the harmonic thermal set and imaginary mode count.
type HarmonicResponse struct {
	Thermal    artifacts.ThermalData `json:"thermal_data" jsonschema:"required"`
	NImaginary int                   `json:"n_imaginary" jsonschema:"required"`
}

// AnharmonicRequest evaluates Gruneisen parameters and thermal expansion.
type AnharmonicRequest struct {
	Structure       structure.Structure `json:"structure" jsonschema:"required"`
	SupercellMatrix structure.Matrix    `json:"supercell_matrix" jsonschema:"required"`
	ForceConstants  string              `json:"force_constants" jsonschema:"required"`
	Temperatures    []float64           `json:"temperatures" jsonschema:"required"`
	HeatCapacity    []float64           `json:"heat_capacity" jsonschema:"required"`
	NImaginary      int                 `json:"n_imaginary"`
	BulkModulus     *float64            `json:"bulk_modulus,omitempty"`
}

// AnharmonicResponse carries the anharmonic fields to merge.
type AnharmonicResponse struct {
	Thermal artifacts.ThermalData `json:"thermal_data" jsonschema:"required"`
}

// RenormalizeRequest renormalizes force constants at one temperature. The
// helper writes the renormalized force constants to Output.
type RenormalizeRequest struct {
	Structure            structure.Structure `json:"structure" jsonschema:"required"`
	SupercellMatrix      structure.Matrix    `json:"supercell_matrix" jsonschema:"required"`
	ClusterSpace         string              `json:"cluster_space" jsonschema:"required"`
	ForceConstants       string              `json:"force_constants" jsonschema:"required"`
	Parameters           []float64           `json:"parameters" jsonschema:"required"`
	Temperature          float64             `json:"temperature"`
	NConfigs             int                 `json:"n_configs" jsonschema:"required"`
	ConvergenceThreshold float64             `json:"convergence_threshold" jsonschema:"required"`
	ImaginaryTol         float64             `json:"imaginary_tol" jsonschema:"required"`
	BulkModulus          *float64            `json:"bulk_modulus,omitempty"`
	Output               string              `json:"output" jsonschema:"required"`
}

// RenormRecord is one temperature's renormalized solution.
type RenormRecord struct {
	Temperature      float64   `json:"temperature"`
	ForceConstants   string    `json:"force_constants" jsonschema:"required"`
	Parameters       []float64 `json:"parameters" jsonschema:"required"`
	NImaginary       int       `json:"n_imaginary"`
	FreeEnergy       float64   `json:"free_energy"`
	Entropy          float64   `json:"entropy"`
	HeatCapacity     float64   `json:"heat_capacity"`
	Gruneisen        float64   `json:"gruneisen"`
	ThermalExpansion float64   `json:"thermal_expansion"`
	ExpansionRatio   float64   `json:"expansion_ratio"`
}

// Point returns the record's thermal row.
func (r RenormRecord) Point() artifacts.ThermalPoint {
	return artifacts.ThermalPoint{
		Temperature:      r.Temperature,
		FreeEnergy:       r.FreeEnergy,
		Entropy:          r.Entropy,
		HeatCapacity:     r.HeatCapacity,
		Gruneisen:        r.Gruneisen,
		ThermalExpansion: r.ThermalExpansion,
		ExpansionRatio:   r.ExpansionRatio,
	}
}

// ExpandTarget is one temperature to expand, with the output paths the
// helper writes the expanded cluster space and force constants to.
type ExpandTarget struct {
	Temperature       float64 `json:"temperature"`
	ExpansionFraction float64 `json:"expansion_fraction"`
	ClusterSpace      string  `json:"cluster_space" jsonschema:"required"`
	ForceConstants    string  `json:"force_constants" jsonschema:"required"`
}

// ExpandRequest regenerates expanded geometry for each target.
type ExpandRequest struct {
	Structure       structure.Structure `json:"structure" jsonschema:"required"`
	SupercellMatrix structure.Matrix    `json:"supercell_matrix" jsonschema:"required"`
	ForceConstants  string              `json:"force_constants" jsonschema:"required"`
	Targets         []ExpandTarget      `json:"targets" jsonschema:"required"`
}

// ExpandResponse holds the expanded parent structures, aligned with targets.
type ExpandResponse struct {
	Structures []structure.Structure `json:"structures" jsonschema:"required"`
}

// PhononRequest derives phonon artifacts from force constants.
type PhononRequest struct {
	Structure       structure.Structure `json:"structure" jsonschema:"required"`
	SupercellMatrix structure.Matrix    `json:"supercell_matrix" jsonschema:"required"`
	ForceConstants  string              `json:"force_constants" jsonschema:"required"`
	MeshDensity     float64             `json:"mesh_density" jsonschema:"required"`
	ImaginaryTol    float64             `json:"imaginary_tol"`
}

// PhononResponse carries serialized phonon objects, stored as blobs verbatim.
type PhononResponse struct {
	DOS                  json.RawMessage `json:"dos" jsonschema:"required"`
	BandStructureUniform json.RawMessage `json:"bandstructure_uniform" jsonschema:"required"`
	BandStructureLine    json.RawMessage `json:"bandstructure_line" jsonschema:"required"`
	ForceConstants       json.RawMessage `json:"force_constants" jsonschema:"required"`
}

// Export formats.
const (
	FormatShengBTE = "shengbte"
	FormatPhonopy  = "phonopy"
)

// ExportRequest writes force constants of one order in an external format.
type ExportRequest struct {
	Structure      structure.Structure `json:"structure" jsonschema:"required"`
	ForceConstants string              `json:"force_constants" jsonschema:"required"`
	Format         string              `json:"format" jsonschema:"required,enum=shengbte,enum=phonopy"`
	Order          int                 `json:"order" jsonschema:"required,enum=2,enum=3"`
	Output         string              `json:"output" jsonschema:"required"`
}

// ExportResponse acknowledges an export.
type ExportResponse struct {
	Output string `json:"output"`
}
