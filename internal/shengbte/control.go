package shengbte

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"latdyn/internal/artifacts"
	"latdyn/internal/config"
	"latdyn/internal/services"
	"latdyn/internal/structure"
)

// lfactor converts lattvec entries to nm; entries are written in Angstrom.
const lfactor = 0.1

// Options are the CONTROL settings not derived from the structure.
type Options struct {
	Temperature       Temperature
	ScaleBroad        float64
	Isotopes          bool
	Nonanalytic       bool
	ReciprocalDensity int
}

// OptionsFromConfig reads the [transport] section.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	temp, err := ParseTemperature(cfg.Transport.Temperature)
	if err != nil {
		return Options{}, services.Wrap(services.ErrConfiguration, "shengbte", "config", "transport.temperature", err)
	}
	return Options{
		Temperature:       temp,
		ScaleBroad:        cfg.Transport.ScaleBroad,
		Isotopes:          cfg.Transport.Isotopes,
		Nonanalytic:       cfg.Transport.Nonanalytic,
		ReciprocalDensity: cfg.Transport.ReciprocalDensity,
	}, nil
}

// Control is the content of a ShengBTE CONTROL file.
type Control struct {
	NGrid          [3]int
	LFactor        float64
	LatticeVectors [3][3]float64
	Elements       []string
	Types          []int
	Positions      [][3]float64
	Scell          [3]int
	Temperature    Temperature
	ScaleBroad     float64
	Isotopes       bool
	Nonanalytic    bool
	OnlyHarmonic   bool
	Nanowires      bool
	Convergence    bool
}

// NewControl builds CONTROL from the fitting run's structure data. The
// supercell matrix must be diagonal.
func NewControl(data artifacts.StructureData, opts Options) (Control, error) {
	s := data.Structure
	if err := s.Validate(); err != nil {
		return Control{}, services.Wrap(services.ErrValidation, "shengbte", "control", "structure", err)
	}
	if !data.SupercellMatrix.IsDiagonal() {
		return Control{}, services.Wrap(services.ErrValidation, "shengbte", "control",
			fmt.Sprintf("supercell matrix %v is not diagonal", data.SupercellMatrix), nil)
	}
	temp, err := opts.Temperature.Resolve()
	if err != nil {
		return Control{}, services.Wrap(services.ErrValidation, "shengbte", "control", "temperature", err)
	}

	c := Control{
		NGrid:          AutomaticDensity(s, opts.ReciprocalDensity),
		LFactor:        lfactor,
		LatticeVectors: s.Lattice,
		Positions:      append([][3]float64(nil), s.FracCoords...),
		Scell:          data.SupercellMatrix.Diagonal(),
		Temperature:    temp,
		ScaleBroad:     opts.ScaleBroad,
		Isotopes:       opts.Isotopes,
		Nonanalytic:    opts.Nonanalytic,
		Convergence:    true,
	}
	c.Elements = s.Elements()
	index := make(map[string]int, len(c.Elements))
	for i, el := range c.Elements {
		index[el] = i + 1
	}
	for _, sp := range s.Species {
		c.Types = append(c.Types, index[sp])
	}
	return c, nil
}

// AutomaticDensity picks a Gamma-centered grid with about kppa k-points per
// reciprocal atom, dividing each axis in inverse proportion to its length.
func AutomaticDensity(s structure.Structure, kppa int) [3]int {
	lengths := s.Lengths()
	if kppa <= 0 || s.NumSites() == 0 {
		return [3]int{1, 1, 1}
	}
	perAtom := float64(kppa) / float64(s.NumSites())
	mult := math.Cbrt(perAtom * lengths[0] * lengths[1] * lengths[2])
	var out [3]int
	for i, l := range lengths {
		out[i] = int(math.Floor(math.Max(mult/l, 1)))
	}
	return out
}

// Structure reconstructs the crystal described by the CONTROL file.
func (c Control) Structure() (structure.Structure, error) {
	if len(c.Types) != len(c.Positions) {
		return structure.Structure{}, fmt.Errorf("%d types but %d positions", len(c.Types), len(c.Positions))
	}
	scale := c.LFactor * 10
	if scale == 0 {
		scale = 1
	}
	s := structure.Structure{FracCoords: append([][3]float64(nil), c.Positions...)}
	for i := range c.LatticeVectors {
		for j := range c.LatticeVectors[i] {
			s.Lattice[i][j] = c.LatticeVectors[i][j] * scale
		}
	}
	for i, typ := range c.Types {
		if typ < 1 || typ > len(c.Elements) {
			return structure.Structure{}, fmt.Errorf("site %d has type %d outside 1..%d", i, typ, len(c.Elements))
		}
		s.Species = append(s.Species, c.Elements[typ-1])
	}
	return s, s.Validate()
}

// Set applies one override by namelist key.
func (c *Control) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "scalebroad":
		c.ScaleBroad, err = strconv.ParseFloat(value, 64)
	case "isotopes":
		c.Isotopes, err = parseBool(value)
	case "nonanalytic":
		c.Nonanalytic, err = parseBool(value)
	case "onlyharmonic":
		c.OnlyHarmonic, err = parseBool(value)
	case "nanowires":
		c.Nanowires, err = parseBool(value)
	case "convergence":
		c.Convergence, err = parseBool(value)
	case "ngrid":
		c.NGrid, err = parseInts3(value)
	case "scell":
		c.Scell, err = parseInts3(value)
	case "t", "temperature":
		var temp Temperature
		if temp, err = ParseTemperatureFlag(value); err == nil {
			c.Temperature, err = temp.Resolve()
		}
	default:
		return services.Wrap(services.ErrValidation, "shengbte", "control", fmt.Sprintf("unknown CONTROL key %q", key), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrValidation, "shengbte", "control", key, err)
	}
	return nil
}

// Marshal renders the namelist.
func (c Control) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString("&allocations\n")
	fmt.Fprintf(&b, "\tnelements=%d\n", len(c.Elements))
	fmt.Fprintf(&b, "\tnatoms=%d\n", len(c.Positions))
	fmt.Fprintf(&b, "\tngrid(:)=%d %d %d\n", c.NGrid[0], c.NGrid[1], c.NGrid[2])
	b.WriteString("\tnorientations=0\n&end\n")

	b.WriteString("&crystal\n")
	fmt.Fprintf(&b, "\tlfactor=%s\n", formatFloat(c.LFactor))
	for i, v := range c.LatticeVectors {
		fmt.Fprintf(&b, "\tlattvec(:,%d)=%s %s %s\n", i+1, formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
	}
	quoted := make([]string, len(c.Elements))
	for i, el := range c.Elements {
		quoted[i] = strconv.Quote(el)
	}
	fmt.Fprintf(&b, "\telements=%s\n", strings.Join(quoted, " "))
	types := make([]string, len(c.Types))
	for i, t := range c.Types {
		types[i] = strconv.Itoa(t)
	}
	fmt.Fprintf(&b, "\ttypes=%s\n", strings.Join(types, " "))
	for i, p := range c.Positions {
		fmt.Fprintf(&b, "\tpositions(:,%d)=%s %s %s\n", i+1, formatFloat(p[0]), formatFloat(p[1]), formatFloat(p[2]))
	}
	fmt.Fprintf(&b, "\tscell(:)=%d %d %d\n", c.Scell[0], c.Scell[1], c.Scell[2])
	b.WriteString("&end\n")

	b.WriteString("&parameters\n")
	if c.Temperature.Kind == Scalar {
		fmt.Fprintf(&b, "\tT=%s\n", formatFloat(c.Temperature.Value))
	} else {
		fmt.Fprintf(&b, "\tT_min=%s\n", formatFloat(c.Temperature.Min))
		fmt.Fprintf(&b, "\tT_max=%s\n", formatFloat(c.Temperature.Max))
		fmt.Fprintf(&b, "\tT_step=%s\n", formatFloat(c.Temperature.Step))
	}
	fmt.Fprintf(&b, "\tscalebroad=%s\n", formatFloat(c.ScaleBroad))
	b.WriteString("&end\n")

	b.WriteString("&flags\n")
	fmt.Fprintf(&b, "\tisotopes=%s\n", fortranBool(c.Isotopes))
	fmt.Fprintf(&b, "\tonlyharmonic=%s\n", fortranBool(c.OnlyHarmonic))
	fmt.Fprintf(&b, "\tnonanalytic=%s\n", fortranBool(c.Nonanalytic))
	fmt.Fprintf(&b, "\tnanowires=%s\n", fortranBool(c.Nanowires))
	fmt.Fprintf(&b, "\tconvergence=%s\n", fortranBool(c.Convergence))
	b.WriteString("&end\n")
	return b.Bytes()
}

// ParseControl reads a CONTROL namelist. Keys it does not model are ignored.
func ParseControl(r io.Reader) (Control, error) {
	c := Control{LFactor: 1}
	var (
		haveT   bool
		tValue  float64
		tBounds [3]float64
		tSeen   int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "&") || strings.HasPrefix(line, "!") {
			continue
		}
		for _, stmt := range splitStatements(line) {
			key, value, ok := strings.Cut(stmt, "=")
			if !ok {
				continue
			}
			key = strings.ToLower(strings.TrimSpace(key))
			value = strings.TrimSpace(value)
			name, index := splitIndex(key)

			var err error
			switch name {
			case "ngrid":
				c.NGrid, err = parseInts3(value)
			case "scell":
				c.Scell, err = parseInts3(value)
			case "lfactor":
				c.LFactor, err = parseFortranFloat(value)
			case "lattvec":
				var v [3]float64
				if v, err = parseFloats3(value); err == nil {
					if index < 1 || index > 3 {
						err = fmt.Errorf("lattvec index %d", index)
					} else {
						c.LatticeVectors[index-1] = v
					}
				}
			case "positions":
				var v [3]float64
				if v, err = parseFloats3(value); err == nil {
					if index < 1 {
						err = fmt.Errorf("positions index %d", index)
						break
					}
					for len(c.Positions) < index {
						c.Positions = append(c.Positions, [3]float64{})
					}
					c.Positions[index-1] = v
				}
			case "elements":
				for _, f := range strings.Fields(value) {
					c.Elements = append(c.Elements, strings.Trim(f, `"'`))
				}
			case "types":
				for _, f := range strings.Fields(value) {
					var t int
					if t, err = strconv.Atoi(f); err != nil {
						break
					}
					c.Types = append(c.Types, t)
				}
			case "t":
				haveT = true
				tValue, err = parseFortranFloat(value)
			case "t_min", "t_max", "t_step":
				slot := map[string]int{"t_min": 0, "t_max": 1, "t_step": 2}[name]
				tBounds[slot], err = parseFortranFloat(value)
				tSeen++
			case "scalebroad":
				c.ScaleBroad, err = parseFortranFloat(value)
			case "isotopes":
				c.Isotopes, err = parseBool(value)
			case "nonanalytic":
				c.Nonanalytic, err = parseBool(value)
			case "onlyharmonic":
				c.OnlyHarmonic, err = parseBool(value)
			case "nanowires":
				c.Nanowires, err = parseBool(value)
			case "convergence":
				c.Convergence, err = parseBool(value)
			}
			if err != nil {
				return Control{}, services.Wrap(services.ErrValidation, "shengbte", "parse control", key, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Control{}, fmt.Errorf("scan CONTROL: %w", err)
	}
	switch {
	case tSeen == 3:
		c.Temperature = RangeTemperature(tBounds[0], tBounds[1], tBounds[2])
	case haveT:
		c.Temperature = ScalarTemperature(tValue)
	}
	return c, nil
}

func splitStatements(line string) []string {
	if i := strings.Index(line, "!"); i >= 0 {
		line = line[:i]
	}
	// Split on commas outside parentheses; a fragment without '=' continues
	// the previous array value.
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range line {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, line[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, line[start:])

	merged := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if !strings.Contains(p, "=") && len(merged) > 0 {
			merged[len(merged)-1] += " " + p
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// splitIndex turns "lattvec(:,2)" into ("lattvec", 2) and "ngrid(:)" into
// ("ngrid", 0).
func splitIndex(key string) (string, int) {
	open := strings.Index(key, "(")
	if open < 0 {
		return key, 0
	}
	name := key[:open]
	inner := strings.TrimSuffix(key[open+1:], ")")
	if _, after, ok := strings.Cut(inner, ","); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(after)); err == nil {
			return name, n
		}
	}
	return name, 0
}

func parseFortranFloat(raw string) (float64, error) {
	raw = strings.NewReplacer("d", "e", "D", "e").Replace(strings.TrimSpace(raw))
	return strconv.ParseFloat(raw, 64)
}

func parseFloats3(raw string) ([3]float64, error) {
	fields := strings.Fields(raw)
	if len(fields) != 3 {
		return [3]float64{}, fmt.Errorf("expected 3 values, got %q", raw)
	}
	var out [3]float64
	for i, f := range fields {
		v, err := parseFortranFloat(f)
		if err != nil {
			return [3]float64{}, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInts3(raw string) ([3]int, error) {
	fields := strings.Fields(strings.ReplaceAll(raw, ",", " "))
	if len(fields) != 3 {
		return [3]int{}, fmt.Errorf("expected 3 integers, got %q", raw)
	}
	var out [3]int
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return [3]int{}, err
		}
		out[i] = v
	}
	return out, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".")) {
	case "true", "t", "1", "yes":
		return true, nil
	case "false", "f", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func fortranBool(v bool) string {
	if v {
		return ".TRUE."
	}
	return ".FALSE."
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
