package artifacts

import (
	"fmt"

	"latdyn/internal/services"
	"latdyn/internal/structure"
)

// Forces holds one force vector per supercell site, eV/Angstrom.
type Forces [][3]float64

// StructureData is the shared geometry context of a fitting run.
type StructureData struct {
	Structure          structure.Structure `json:"structure"`
	SupercellStructure structure.Structure `json:"supercell_structure"`
	SupercellMatrix    structure.Matrix    `json:"supercell_matrix"`
}

// FittingData records fit diagnostics.
type FittingData struct {
	Cutoffs      [][]float64    `json:"cutoffs"`
	BestCutoff   []float64      `json:"best_cutoff,omitempty"`
	FitMethod    string         `json:"fit_method"`
	SeparateFit  bool           `json:"separate_fit"`
	ImaginaryTol float64        `json:"imaginary_tol"`
	NImaginary   int            `json:"n_imaginary"`
	Diagnostics  map[string]any `json:"diagnostics,omitempty"`
}

// ThermalData is a temperature-indexed set of thermal properties. Anharmonic
// fields are empty when no bulk modulus was available.
type ThermalData struct {
	Temperature      []float64 `json:"temperature"`
	FreeEnergy       []float64 `json:"free_energy"`
	Entropy          []float64 `json:"entropy"`
	HeatCapacity     []float64 `json:"heat_capacity"`
	Gruneisen        []float64 `json:"gruneisen,omitempty"`
	ThermalExpansion []float64 `json:"thermal_expansion,omitempty"`
	ExpansionRatio   []float64 `json:"expansion_ratio,omitempty"`

	// ExpansionCorrected marks rows renormalized on the thermally expanded
	// cell; false rows came from the first, unexpanded pass.
	ExpansionCorrected []bool `json:"expansion_corrected,omitempty"`
}

// Merge copies the anharmonic fields of other over t.
func (t *ThermalData) Merge(other ThermalData) {
	if len(other.Gruneisen) > 0 {
		t.Gruneisen = other.Gruneisen
	}
	if len(other.ThermalExpansion) > 0 {
		t.ThermalExpansion = other.ThermalExpansion
	}
	if len(other.ExpansionRatio) > 0 {
		t.ExpansionRatio = other.ExpansionRatio
	}
}

// ThermalPoint is one temperature's slice of ThermalData.
type ThermalPoint struct {
	Temperature      float64
	FreeEnergy       float64
	Entropy          float64
	HeatCapacity     float64
	Gruneisen        float64
	ThermalExpansion float64
	ExpansionRatio   float64

	ExpansionCorrected bool
}

// Append adds one temperature row. Every column is appended so the lists
// stay index-aligned.
func (t *ThermalData) Append(p ThermalPoint) {
	t.Temperature = append(t.Temperature, p.Temperature)
	t.FreeEnergy = append(t.FreeEnergy, p.FreeEnergy)
	t.Entropy = append(t.Entropy, p.Entropy)
	t.HeatCapacity = append(t.HeatCapacity, p.HeatCapacity)
	t.Gruneisen = append(t.Gruneisen, p.Gruneisen)
	t.ThermalExpansion = append(t.ThermalExpansion, p.ThermalExpansion)
	t.ExpansionRatio = append(t.ExpansionRatio, p.ExpansionRatio)
	t.ExpansionCorrected = append(t.ExpansionCorrected, p.ExpansionCorrected)
}

// Len returns the number of temperature rows.
func (t ThermalData) Len() int {
	return len(t.Temperature)
}

// LoadStructureData reads structure_data.json.
func (d *Dir) LoadStructureData() (StructureData, error) {
	var data StructureData
	if err := d.ReadJSON(StructureDataFile, &data); err != nil {
		return StructureData{}, err
	}
	if err := data.SupercellStructure.Validate(); err != nil {
		return StructureData{}, services.Wrap(services.ErrValidation, "artifacts", "structure data", "supercell structure", err)
	}
	return data, nil
}

// LoadSamples reads the index-aligned perturbed structures and forces.
func (d *Dir) LoadSamples() ([]structure.Structure, []Forces, error) {
	var structures []structure.Structure
	if err := d.ReadJSON(PerturbedStructuresFile, &structures); err != nil {
		return nil, nil, err
	}
	var forces []Forces
	if err := d.ReadJSON(PerturbedForcesFile, &forces); err != nil {
		return nil, nil, err
	}
	if len(structures) != len(forces) {
		return nil, nil, services.Wrap(services.ErrValidation, "artifacts", "samples",
			fmt.Sprintf("%d structures but %d force sets", len(structures), len(forces)), nil)
	}
	if len(structures) == 0 {
		return nil, nil, &services.EmptyInputError{What: "perturbed structures"}
	}
	return structures, forces, nil
}

// SaveSamples writes the three StructureAggregator artifacts.
func (d *Dir) SaveSamples(structures []structure.Structure, forces []Forces, data StructureData) error {
	if err := d.WriteJSON(PerturbedStructuresFile, structures); err != nil {
		return err
	}
	if err := d.WriteJSON(PerturbedForcesFile, forces); err != nil {
		return err
	}
	return d.WriteJSON(StructureDataFile, data)
}
