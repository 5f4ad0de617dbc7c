package structure

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ReadPOSCAR parses a VASP 5 POSCAR or CONTCAR. The species line is required.
// Velocities and predictor-corrector blocks after the coordinates are ignored.
func ReadPOSCAR(r io.Reader) (Structure, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Structure{}, fmt.Errorf("read poscar: %w", err)
	}
	if len(lines) < 8 {
		return Structure{}, fmt.Errorf("poscar: expected at least 8 lines, got %d", len(lines))
	}

	scale, err := strconv.ParseFloat(firstField(lines[1]), 64)
	if err != nil {
		return Structure{}, fmt.Errorf("poscar: scale factor: %w", err)
	}

	var s Structure
	for i := 0; i < 3; i++ {
		vec, err := parseVector(lines[2+i])
		if err != nil {
			return Structure{}, fmt.Errorf("poscar: lattice vector %d: %w", i+1, err)
		}
		s.Lattice[i] = vec
	}

	symbols := strings.Fields(lines[5])
	if len(symbols) == 0 {
		return Structure{}, fmt.Errorf("poscar: missing species line")
	}
	if _, err := strconv.Atoi(symbols[0]); err == nil {
		return Structure{}, fmt.Errorf("poscar: species line required (VASP 4 format not supported)")
	}
	countFields := strings.Fields(lines[6])
	if len(countFields) != len(symbols) {
		return Structure{}, fmt.Errorf("poscar: %d species but %d counts", len(symbols), len(countFields))
	}

	total := 0
	for i, field := range countFields {
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 {
			return Structure{}, fmt.Errorf("poscar: invalid count %q", field)
		}
		sym := NormalizeSymbol(symbols[i])
		for k := 0; k < n; k++ {
			s.Species = append(s.Species, sym)
		}
		total += n
	}

	idx := 7
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lines[idx])), "s") {
		idx++ // selective dynamics
	}
	if idx >= len(lines) {
		return Structure{}, fmt.Errorf("poscar: missing coordinate mode line")
	}
	mode := strings.ToLower(strings.TrimSpace(lines[idx]))
	cartesian := strings.HasPrefix(mode, "c") || strings.HasPrefix(mode, "k")
	idx++
	if len(lines)-idx < total {
		return Structure{}, fmt.Errorf("poscar: expected %d coordinates, got %d", total, len(lines)-idx)
	}

	if scale < 0 {
		vol := math.Abs(s.Volume())
		if vol == 0 {
			return Structure{}, fmt.Errorf("poscar: singular lattice")
		}
		scale = math.Cbrt(-scale / vol)
	}
	for i := range s.Lattice {
		for j := range s.Lattice[i] {
			s.Lattice[i][j] *= scale
		}
	}

	s.FracCoords = make([][3]float64, 0, total)
	var inv [3][3]float64
	if cartesian {
		inv, err = invert3(s.Lattice)
		if err != nil {
			return Structure{}, fmt.Errorf("poscar: %w", err)
		}
	}
	for k := 0; k < total; k++ {
		vec, err := parseVector(lines[idx+k])
		if err != nil {
			return Structure{}, fmt.Errorf("poscar: site %d: %w", k+1, err)
		}
		if cartesian {
			for j := range vec {
				vec[j] *= scale
			}
			vec = fracToCart(vec, inv)
		}
		s.FracCoords = append(s.FracCoords, vec)
	}
	return s, s.Validate()
}

func firstField(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseVector(line string) ([3]float64, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return [3]float64{}, fmt.Errorf("expected 3 values in %q", line)
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return [3]float64{}, fmt.Errorf("parse %q: %w", fields[i], err)
		}
		out[i] = v
	}
	return out, nil
}

func invert3(lattice [3][3]float64) ([3][3]float64, error) {
	s := Structure{Lattice: lattice}
	var out [3][3]float64
	dense := s.latticeDense()
	if err := dense.Inverse(dense); err != nil {
		return out, fmt.Errorf("invert lattice: %w", err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = dense.At(i, j)
		}
	}
	return out, nil
}
