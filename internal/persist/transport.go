package persist

import (
	"bytes"
	"context"
	"time"

	"latdyn/internal/artifacts"
	"latdyn/internal/logging"
	"latdyn/internal/services"
	"latdyn/internal/shengbte"
	"latdyn/internal/store"
	"latdyn/internal/structure"
	"latdyn/internal/taskspec"
)

// ConductivityDocument is the lattice_thermal_conductivity record of one
// ShengBTE run.
type ConductivityDocument struct {
	CreatedAt       time.Time           `json:"created_at"`
	Tags            []string            `json:"tags"`
	FormulaPretty   string              `json:"formula_pretty"`
	Structure       structure.Structure `json:"structure"`
	SupercellMatrix structure.Matrix    `json:"supercell_matrix"`
	Temperatures    []float64           `json:"temperatures"`
	Conductivity    [][3][3]float64     `json:"lattice_thermal_conductivity"`
	AverageKappa    []float64           `json:"average_lattice_thermal_conductivity"`
	KappaTable      string              `json:"kappa_table"`
	ShengBTEDir     string              `json:"shengbte_dir"`
	FittingID       *int64              `json:"fc_fitting_id"`
	FittingDir      string              `json:"fc_fitting_dir,omitempty"`
}

// ShengBTEToDb stores the ShengBTE result in dir, tagged with the spec's
// fitting run. It returns the inserted document id.
func (a *Adapter) ShengBTEToDb(ctx context.Context, dir *artifacts.Dir, spec *taskspec.Spec, opts Options) (int64, error) {
	logger := logging.WithContext(ctx, a.logger)

	raw, err := dir.ReadFile(artifacts.ShengBTEControlFile)
	if err != nil {
		return 0, err
	}
	control, err := shengbte.ParseControl(bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	s, err := control.Structure()
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "persist", "shengbte", "CONTROL structure", err)
	}
	points, table, err := shengbte.LoadKappa(dir)
	if err != nil {
		return 0, err
	}

	doc := ConductivityDocument{
		CreatedAt:       a.now(),
		Tags:            tags(spec),
		FormulaPretty:   s.ReducedFormula(),
		Structure:       s,
		SupercellMatrix: structure.Diag(control.Scell[0], control.Scell[1], control.Scell[2]),
		KappaTable:      table,
		ShengBTEDir:     dir.Root(),
	}
	for _, p := range points {
		doc.Temperatures = append(doc.Temperatures, p.Temperature)
		doc.Conductivity = append(doc.Conductivity, p.Tensor)
		doc.AverageKappa = append(doc.AverageKappa, p.Average())
	}
	if spec != nil {
		doc.FittingID = spec.FittingID
		doc.FittingDir = spec.FittingDir
	}
	if doc.FittingID == nil {
		logging.WarnWithContext(logger, "spec has no fc_fitting_id; conductivity is not linked to a fitting run",
			"unlinked_conductivity",
			logging.String(logging.FieldErrorHint, "run fc-to-db before shengbte-to-db"),
			logging.String(logging.FieldImpact, "document stored with a null fc_fitting_id"),
		)
	}

	id, err := a.insert(ctx, store.CollectionThermalConductivity, doc, opts)
	if err != nil {
		return 0, err
	}
	logger.Info("stored thermal conductivity",
		logging.String("formula", doc.FormulaPretty),
		logging.String("table", table),
		logging.Int("temperatures", len(points)),
	)
	return id, nil
}
