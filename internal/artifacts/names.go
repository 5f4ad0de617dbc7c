package artifacts

import (
	"strconv"
	"strings"
)

// Fixed artifact file names shared by every task.
const (
	PerturbedStructuresFile = "perturbed_structures.json"
	PerturbedForcesFile     = "perturbed_forces.json"
	StructureDataFile       = "structure_data.json"
	FittingDataFile         = "fitting_data.json"
	ThermalDataQHAFile      = "thermal_data_qha.json"
	ThermalDataRenormFile   = "thermal_data_renorm.json"

	ForceConstantsFile = "force_constants.fcs"
	ParametersFile     = "parameters.txt"
	ClusterSpaceFile   = "cluster_space.cs"

	ShengBTEThirdOrderFile  = "FORCE_CONSTANTS_3RD"
	PhonopySecondOrderFile  = "FORCE_CONSTANTS_2ND"
	ShengBTEControlFile     = "CONTROL"
	ShengBTEStdoutFile      = "shengbte.out"
	ShengBTEStderrFile      = "shengbte_err.txt"
	KappaConvergedFile      = "BTE.KappaTensorVsT_CONV"
	KappaRelaxationTimeFile = "BTE.KappaTensorVsT_RTA"

	LockFile = ".latdyn.lock"
)

// FormatTemperature renders a temperature the way per-temperature file names
// embed it: integral values without a decimal point (300 -> "300").
func FormatTemperature(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

// RenormForceConstantsFile names the renormalized force constants at t.
func RenormForceConstantsFile(t float64) string {
	return "force_constants_" + FormatTemperature(t) + "K.fcs"
}

// RenormParametersFile names the renormalized parameter vector at t.
func RenormParametersFile(t float64) string {
	return "parameters_" + FormatTemperature(t) + "K.txt"
}

// RenormSecondOrderFile names the phonopy-format export at t.
func RenormSecondOrderFile(t float64) string {
	return PhonopySecondOrderFile + "_" + FormatTemperature(t) + "K"
}

// ParseRenormTemperature extracts t from a force_constants_{t}K.fcs name.
func ParseRenormTemperature(name string) (float64, bool) {
	const prefix, suffix = "force_constants_", "K.fcs"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || t < 0 {
		return 0, false
	}
	return t, true
}

// ScratchForceConstantsFile names first-pass renormalization output that may
// be superseded by the thermal-expansion pass.
func ScratchForceConstantsFile(t float64) string {
	return "renorm_pass1_" + FormatTemperature(t) + "K.fcs"
}

// ExpandedClusterSpaceFile names the cluster space regenerated on the
// thermally expanded structure at t.
func ExpandedClusterSpaceFile(t float64) string {
	return "cluster_space_" + FormatTemperature(t) + "K.cs"
}

// ExpandedForceConstantsFile names the force constants mapped onto the
// thermally expanded structure at t.
func ExpandedForceConstantsFile(t float64) string {
	return "expanded_force_constants_" + FormatTemperature(t) + "K.fcs"
}
