package shengbte_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"latdyn/internal/artifacts"
	"latdyn/internal/services"
	"latdyn/internal/shengbte"
	"latdyn/internal/structure"
	"latdyn/internal/testsupport"
)

func rockSaltData() artifacts.StructureData {
	prim := testsupport.RockSaltStructure("Na", "Cl", 5.64)
	return artifacts.StructureData{
		Structure:       prim,
		SupercellMatrix: structure.Diag(4, 4, 4),
	}
}

func TestNewControlRoundTrip(t *testing.T) {
	opts := shengbte.Options{
		Temperature:       shengbte.ExplicitTemperatures(0, 100, 200, 300),
		ScaleBroad:        0.5,
		Isotopes:          true,
		ReciprocalDensity: 50000,
	}
	control, err := shengbte.NewControl(rockSaltData(), opts)
	if err != nil {
		t.Fatalf("NewControl: %v", err)
	}
	if diff := cmp.Diff([3]int{4, 4, 4}, control.Scell); diff != "" {
		t.Fatalf("scell mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, control.Types); diff != "" {
		t.Fatalf("types mismatch (-want +got):\n%s", diff)
	}

	text := string(control.Marshal())
	for _, want := range []string{
		"&allocations", "nelements=2", "natoms=2", "lfactor=0.1",
		`elements="Na" "Cl"`, "scell(:)=4 4 4", "T_min=100", "T_max=300", "T_step=100",
		"isotopes=.TRUE.", "nonanalytic=.FALSE.",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("CONTROL missing %q:\n%s", want, text)
		}
	}

	parsed, err := shengbte.ParseControl(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseControl: %v", err)
	}
	if diff := cmp.Diff(control, parsed); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	s, err := parsed.Structure()
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	approx := cmpopts.EquateApprox(0, 1e-12)
	if diff := cmp.Diff(rockSaltData().Structure, s, approx); diff != "" {
		t.Fatalf("structure mismatch (-want +got):\n%s", diff)
	}
}

func TestParseControlCommaSeparated(t *testing.T) {
	text := `&allocations
	nelements=1, natoms=1, ngrid(:)=10 10 10
&end
&crystal
	lfactor=0.1,
	lattvec(:,1)=4.0 0.0 0.0,
	lattvec(:,2)=0.0 4.0 0.0,
	lattvec(:,3)=0.0 0.0 4.0,
	elements="Si"
	types=1,
	positions(:,1)=0.0 0.0 0.0,
	scell(:)=3 3 3
&end
&parameters
	T=300d0 ! room temperature
&end
`
	c, err := shengbte.ParseControl(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseControl: %v", err)
	}
	if c.NGrid != [3]int{10, 10, 10} || c.Scell != [3]int{3, 3, 3} {
		t.Fatalf("unexpected grids: %v %v", c.NGrid, c.Scell)
	}
	if !cmp.Equal(c.Temperature, shengbte.ScalarTemperature(300)) {
		t.Fatalf("unexpected temperature: %+v", c.Temperature)
	}
	if c.LatticeVectors[1] != [3]float64{0, 4, 0} {
		t.Fatalf("unexpected lattvec 2: %v", c.LatticeVectors[1])
	}
}

func TestNewControlRejectsNonDiagonalSupercell(t *testing.T) {
	data := rockSaltData()
	data.SupercellMatrix = structure.Matrix{{-1, 1, 1}, {1, -1, 1}, {1, 1, -1}}
	_, err := shengbte.NewControl(data, shengbte.Options{Temperature: shengbte.ScalarTemperature(300)})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestControlSet(t *testing.T) {
	c, err := shengbte.NewControl(rockSaltData(), shengbte.Options{Temperature: shengbte.ScalarTemperature(300)})
	if err != nil {
		t.Fatalf("NewControl: %v", err)
	}
	for key, value := range map[string]string{
		"scalebroad":  "1.0",
		"nonanalytic": "true",
		"ngrid":       "8 8 8",
		"T":           "100:500:100",
	} {
		if err := c.Set(key, value); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}
	if c.ScaleBroad != 1 || !c.Nonanalytic || c.NGrid != [3]int{8, 8, 8} {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if !cmp.Equal(c.Temperature, shengbte.RangeTemperature(100, 500, 100)) {
		t.Fatalf("unexpected temperature: %+v", c.Temperature)
	}
	if err := c.Set("bogus", "1"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown key, got %v", err)
	}
	if !bytes.Contains(c.Marshal(), []byte("ngrid(:)=8 8 8")) {
		t.Fatal("ngrid override missing from CONTROL")
	}
}

func TestAutomaticDensity(t *testing.T) {
	s := testsupport.CubicStructure("Si", 4)
	if got := shengbte.AutomaticDensity(s, 1100); got != [3]int{10, 10, 10} {
		t.Fatalf("AutomaticDensity = %v", got)
	}
	if got := shengbte.AutomaticDensity(s, 0); got != [3]int{1, 1, 1} {
		t.Fatalf("AutomaticDensity(0) = %v", got)
	}
}
