// Package deps reports whether the external programs latdyn shells out to
// can be found on PATH.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"latdyn/internal/config"
)

// Requirement defines an external program latdyn relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements builds the binary requirements for the configured oracle and
// transport solver. A command that fails to resolve is reported with an empty
// Command so CheckBinaries marks it unconfigured.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	oracle := Requirement{
		Name:        "Oracle",
		Description: "Required for fitting, renormalization and phonon analysis",
	}
	if argv, err := cfg.OracleCommand(); err == nil {
		oracle.Command = argv[0]
	}
	solver := Requirement{
		Name:        "ShengBTE",
		Description: "Required for lattice thermal conductivity",
		Optional:    true,
	}
	if argv, err := cfg.ShengBTECommand(); err == nil {
		solver.Command = argv[0]
	}
	return []Requirement{oracle, solver}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
