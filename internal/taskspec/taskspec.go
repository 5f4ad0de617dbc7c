// Package taskspec reads and writes the shared spec that the workflow engine
// hands from one task to the next: upstream perturbed calculations, calc_locs,
// tags, and the fitting-run identifier assigned by the database tasks.
//
// Files are YAML or JSON, chosen by extension. Keys latdyn does not know about
// are preserved on save.
package taskspec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"latdyn/internal/artifacts"
	"latdyn/internal/services"
	"latdyn/internal/structure"
)

// Spec keys owned by latdyn.
const (
	KeyPerturbedTasks = "perturbed_tasks"
	KeyCalcLocs       = "calc_locs"
	KeyTags           = "tags"
	KeyFittingID      = "fc_fitting_id"
	KeyFittingDir     = "fc_fitting_dir"
)

// PerturbedTask is one displaced-supercell calculation result.
type PerturbedTask struct {
	ParentStructure structure.Structure `json:"parent_structure"`
	SupercellMatrix structure.Matrix    `json:"supercell_matrix"`
	Structure       structure.Structure `json:"structure"`
	Forces          artifacts.Forces    `json:"forces"`
}

// CalcLoc names a prior calculation directory.
type CalcLoc struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Spec is the inter-task state.
type Spec struct {
	PerturbedTasks []PerturbedTask `json:"perturbed_tasks,omitempty"`
	CalcLocs       []CalcLoc       `json:"calc_locs,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	FittingID      *int64          `json:"fc_fitting_id,omitempty"`
	FittingDir     string          `json:"fc_fitting_dir,omitempty"`

	extra map[string]any
}

// Update is the spec change a database task asks the workflow engine to apply.
type Update struct {
	FittingID  int64  `json:"fc_fitting_id"`
	FittingDir string `json:"fc_fitting_dir"`
}

// Apply merges u into s.
func (u Update) Apply(s *Spec) {
	id := u.FittingID
	s.FittingID = &id
	s.FittingDir = u.FittingDir
}

// Extra returns a copy of the keys latdyn does not model.
func (s *Spec) Extra() map[string]any {
	out := make(map[string]any, len(s.extra))
	for k, v := range s.extra {
		out[k] = v
	}
	return out
}

// Load reads a spec file. JSON is accepted by the YAML decoder, so both
// formats share one path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "taskspec", "load", path, err)
		}
		return nil, fmt.Errorf("read spec: %w", err)
	}
	return Parse(data)
}

// Parse decodes spec content.
func Parse(data []byte) (*Spec, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, services.Wrap(services.ErrValidation, "taskspec", "parse", "", err)
	}

	known := map[string]any{}
	extra := map[string]any{}
	for key, value := range raw {
		switch key {
		case KeyPerturbedTasks, KeyCalcLocs, KeyTags, KeyFittingID, KeyFittingDir:
			known[key] = value
		default:
			extra[key] = value
		}
	}

	payload, err := json.Marshal(known)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "taskspec", "parse", "normalize", err)
	}
	spec := &Spec{}
	if err := json.Unmarshal(payload, spec); err != nil {
		return nil, services.Wrap(services.ErrValidation, "taskspec", "parse", "decode", err)
	}
	spec.extra = extra
	return spec, nil
}

// Save writes the spec, choosing JSON for *.json and YAML otherwise.
func (s *Spec) Save(path string) error {
	merged, err := s.toMap()
	if err != nil {
		return err
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(merged, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	} else {
		data, err = yaml.Marshal(merged)
	}
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write spec: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace spec: %w", err)
	}
	return nil
}

func (s *Spec) toMap() (map[string]any, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode spec: %w", err)
	}
	known := map[string]any{}
	if err := json.Unmarshal(payload, &known); err != nil {
		return nil, fmt.Errorf("encode spec: %w", err)
	}
	merged := s.Extra()
	for k, v := range known {
		merged[k] = v
	}
	return merged, nil
}

// OptimizationDir returns the path of the last calc_loc whose name mentions
// an optimization, or "" when there is none.
func (s *Spec) OptimizationDir() string {
	dir := ""
	for _, loc := range s.CalcLocs {
		if strings.Contains(strings.ToLower(loc.Name), "optimiz") {
			dir = loc.Path
		}
	}
	return dir
}
