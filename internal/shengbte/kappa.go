package shengbte

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"latdyn/internal/artifacts"
	"latdyn/internal/services"
)

// KappaPoint is the lattice thermal conductivity tensor (W/m/K) at one
// temperature.
type KappaPoint struct {
	Temperature float64       `json:"temperature"`
	Tensor      [3][3]float64 `json:"tensor"`
}

// Average returns the trace over three.
func (p KappaPoint) Average() float64 {
	return (p.Tensor[0][0] + p.Tensor[1][1] + p.Tensor[2][2]) / 3
}

// KappaCandidates lists the solver output tables in order of preference.
var KappaCandidates = []string{artifacts.KappaConvergedFile, artifacts.KappaRelaxationTimeFile}

// LocateKappa returns the name of the first kappa table present in dir.
func LocateKappa(dir *artifacts.Dir) (string, error) {
	for _, name := range KappaCandidates {
		if dir.Exists(name) {
			return name, nil
		}
	}
	paths := make([]string, len(KappaCandidates))
	for i, name := range KappaCandidates {
		paths[i] = dir.Path(name)
	}
	return "", &services.MissingOutputError{Candidates: paths}
}

// LoadKappa locates and parses the kappa table in dir.
func LoadKappa(dir *artifacts.Dir) ([]KappaPoint, string, error) {
	name, err := LocateKappa(dir)
	if err != nil {
		return nil, "", err
	}
	data, err := dir.ReadFile(name)
	if err != nil {
		return nil, "", err
	}
	points, err := ParseKappa(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	return points, name, nil
}

// ParseKappa reads a whitespace-delimited table: temperature followed by
// the nine tensor components in row-major order. Trailing columns, such as
// the iteration count of the converged table, are ignored.
func ParseKappa(r io.Reader) ([]KappaPoint, error) {
	var out []KappaPoint
	scanner := bufio.NewScanner(r)
	row := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		row++
		fields := strings.Fields(line)
		if len(fields) < 10 {
			return nil, services.Wrap(services.ErrValidation, "shengbte", "parse kappa",
				fmt.Sprintf("row %d has %d columns, want at least 10", row, len(fields)), nil)
		}
		var vals [10]float64
		for i := range vals {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, "shengbte", "parse kappa",
					fmt.Sprintf("row %d column %d", row, i+1), err)
			}
			vals[i] = v
		}
		p := KappaPoint{Temperature: vals[0]}
		for i := 0; i < 9; i++ {
			p.Tensor[i/3][i%3] = vals[i+1]
		}
		out = append(out, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan kappa table: %w", err)
	}
	if len(out) == 0 {
		return nil, &services.EmptyInputError{What: "kappa rows"}
	}
	return out, nil
}
