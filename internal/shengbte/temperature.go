package shengbte

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// TemperatureKind tags the shape of a temperature specification.
type TemperatureKind int

const (
	Scalar TemperatureKind = iota
	Range
	Explicit
)

func (k TemperatureKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Range:
		return "range"
	case Explicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// Temperature is a ShengBTE temperature specification in Kelvin.
type Temperature struct {
	Kind   TemperatureKind
	Value  float64
	Min    float64
	Max    float64
	Step   float64
	Values []float64
}

// ScalarTemperature is a single temperature.
func ScalarTemperature(t float64) Temperature {
	return Temperature{Kind: Scalar, Value: t}
}

// RangeTemperature is an inclusive min..max grid.
func RangeTemperature(lo, hi, step float64) Temperature {
	return Temperature{Kind: Range, Min: lo, Max: hi, Step: step}
}

// ExplicitTemperatures is a list the solver grid is derived from.
func ExplicitTemperatures(values ...float64) Temperature {
	return Temperature{Kind: Explicit, Values: append([]float64(nil), values...)}
}

// ParseTemperature accepts the shapes a config or spec may carry: a number,
// a list of numbers, or a {min, max, step} table.
func ParseTemperature(v any) (Temperature, error) {
	switch val := v.(type) {
	case nil:
		return Temperature{}, errors.New("temperature is required")
	case []float64:
		return ExplicitTemperatures(val...), nil
	case []any:
		values := make([]float64, 0, len(val))
		for _, item := range val {
			f, ok := number(item)
			if !ok {
				return Temperature{}, fmt.Errorf("temperature list entry %v is not a number", item)
			}
			values = append(values, f)
		}
		return ExplicitTemperatures(values...), nil
	case map[string]float64:
		return rangeFromTable(func(k string) (float64, bool) { f, ok := val[k]; return f, ok }, len(val))
	case map[string]any:
		return rangeFromTable(func(k string) (float64, bool) { return number(val[k]) }, len(val))
	default:
		f, ok := number(v)
		if !ok {
			return Temperature{}, fmt.Errorf("unsupported temperature %T", v)
		}
		return ScalarTemperature(f), nil
	}
}

func rangeFromTable(get func(string) (float64, bool), size int) (Temperature, error) {
	var out [3]float64
	for i, key := range []string{"min", "max", "step"} {
		f, ok := get(key)
		if !ok {
			return Temperature{}, fmt.Errorf("temperature table needs min, max and step (missing %s)", key)
		}
		out[i] = f
	}
	if size != 3 {
		return Temperature{}, errors.New("temperature table accepts only min, max and step")
	}
	return RangeTemperature(out[0], out[1], out[2]), nil
}

// ParseTemperatureFlag parses "300", "100:1500:100" or "0,100,200".
func ParseTemperatureFlag(raw string) (Temperature, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.Contains(raw, ":"):
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return Temperature{}, fmt.Errorf("temperature range %q must be min:max:step", raw)
		}
		vals, err := parseFloats(parts)
		if err != nil {
			return Temperature{}, err
		}
		return RangeTemperature(vals[0], vals[1], vals[2]), nil
	case strings.Contains(raw, ","):
		vals, err := parseFloats(strings.Split(raw, ","))
		if err != nil {
			return Temperature{}, err
		}
		return ExplicitTemperatures(vals...), nil
	default:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Temperature{}, fmt.Errorf("parse temperature %q: %w", raw, err)
		}
		return ScalarTemperature(f), nil
	}
}

// Resolve collapses an explicit list into the scalar or range form ShengBTE
// understands. The grid spans min..max with one step per listed value; a
// 0 K entry is excluded and the next-lowest value anchors the grid, since
// the solver is singular at zero.
func (t Temperature) Resolve() (Temperature, error) {
	switch t.Kind {
	case Scalar:
		if t.Value < 0 {
			return Temperature{}, fmt.Errorf("negative temperature %v", t.Value)
		}
		return t, nil
	case Range:
		if t.Min < 0 || t.Step <= 0 || t.Max < t.Min {
			return Temperature{}, fmt.Errorf("invalid temperature range %v:%v:%v", t.Min, t.Max, t.Step)
		}
		return t, nil
	case Explicit:
	default:
		return Temperature{}, fmt.Errorf("unknown temperature kind %d", t.Kind)
	}

	if len(t.Values) == 0 {
		return Temperature{}, errors.New("empty temperature list")
	}
	values := append([]float64(nil), t.Values...)
	sort.Float64s(values)
	if values[0] < 0 {
		return Temperature{}, fmt.Errorf("negative temperature %v", values[0])
	}
	if len(values) == 1 {
		return ScalarTemperature(values[0]), nil
	}

	lo, hi := values[0], values[len(values)-1]
	intervals := len(values) - 1
	if lo == 0 {
		lo = values[1]
		intervals--
	}
	if intervals == 0 {
		return ScalarTemperature(hi), nil
	}
	return RangeTemperature(lo, hi, (hi-lo)/float64(intervals)), nil
}

// Temperatures expands the description into the explicit grid the solver
// will evaluate.
func (t Temperature) Temperatures() ([]float64, error) {
	r, err := t.Resolve()
	if err != nil {
		return nil, err
	}
	if r.Kind == Scalar {
		return []float64{r.Value}, nil
	}
	n := int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.Min+float64(i)*r.Step)
	}
	return out, nil
}

func parseFloats(parts []string) ([]float64, error) {
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse temperature %q: %w", p, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
