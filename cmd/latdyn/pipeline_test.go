package main

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"latdyn/internal/artifacts"
	"latdyn/internal/services"
	"latdyn/internal/store"
	"latdyn/internal/testsupport"
)

func TestRenormalizeCommandCouplesThermalExpansion(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithBulkModulus(100))
	env.cfg.Renormalization.WithThermalExpansion = true
	writeTestConfig(t, env.configPath, env.cfg)
	testsupport.SeedFittingRun(t, env.dir, 2)
	testsupport.SeedFitOutputs(t, env.dir, []float64{0.5, -0.25})

	out, err := env.run(t, "renormalize", "--temperatures", "0,300", "--workers", "1")
	if err != nil {
		t.Fatalf("renormalize: %v", err)
	}
	if !strings.Contains(out, "Expansion corrected: 0 K, 300 K") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if got := env.oracle.Count("renormalize"); got != 4 {
		t.Fatalf("renormalize calls = %d, want 4 (two passes)", got)
	}
	for _, name := range []string{
		artifacts.ThermalDataRenormFile,
		artifacts.RenormForceConstantsFile(300),
		artifacts.RenormParametersFile(300),
	} {
		if !env.dir.Exists(name) {
			t.Fatalf("expected %s to be written", name)
		}
	}
}

func TestShengBTEToDbResolvesStoreFromEnv(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "env", "latdyn.db")
	env := setupCLITestEnv(t, testsupport.WithEnv("db_file", dbFile))
	env.cfg.Database.DBFile = ">>db_file<<"
	writeTestConfig(t, env.configPath, env.cfg)

	testsupport.SeedFittingRun(t, env.dir, 1)
	testsupport.WriteFile(t, env.dir.Path(artifacts.PhonopySecondOrderFile), "fc2\n")
	testsupport.WriteFile(t, env.dir.Path(artifacts.ShengBTEThirdOrderFile), "fc3\n")
	testsupport.WriteFile(t, filepath.Join(env.dir.Root(), defaultSpecFile), "fc_fitting_id: 4\nfc_fitting_dir: /runs/fit\n")

	if _, err := env.run(t, "shengbte", "--temperature", "100:200:100"); err != nil {
		t.Fatalf("shengbte: %v", err)
	}
	out, err := env.run(t, "shengbte-to-db")
	if err != nil {
		t.Fatalf("shengbte-to-db: %v", err)
	}
	if !strings.Contains(out, "Document id:") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	st, err := store.OpenPath(dbFile)
	if err != nil {
		t.Fatalf("open env store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	docs, err := st.FindDocuments(context.Background(), store.CollectionThermalConductivity, "fc_fitting_id", 4)
	if err != nil {
		t.Fatalf("FindDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one conductivity document in %s, got %d", dbFile, len(docs))
	}
}

func TestResultsKappaDefaultsToCurrentDirectory(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Paths.WorkDir = ""
	writeTestConfig(t, env.configPath, env.cfg)

	cwd := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(cwd, artifacts.KappaConvergedFile), kappaRows)
	testsupport.Chdir(t, cwd)

	out, err := env.runWithoutDir(t, "results", "kappa")
	if err != nil {
		t.Fatalf("results kappa: %v", err)
	}
	if !strings.Contains(out, artifacts.KappaConvergedFile) || !strings.Contains(out, "30.000") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestResultsDocumentPrintsStoredDocument(t *testing.T) {
	env := setupCLITestEnv(t)
	st := testsupport.MustOpenStore(t, env.cfg)
	id, err := st.InsertDocument(context.Background(), store.CollectionThermalConductivity, map[string]any{
		"fc_fitting_id": 7,
		"temperatures":  []float64{300},
	})
	if err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	out, err := env.run(t, "results", "document", strconv.FormatInt(id, 10))
	if err != nil {
		t.Fatalf("results document: %v", err)
	}
	var got struct {
		ID         int64          `json:"id"`
		Collection string         `json:"collection"`
		Body       map[string]any `json:"body"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if got.ID != id || got.Collection != store.CollectionThermalConductivity {
		t.Fatalf("unexpected document header: %+v", got)
	}
	if got.Body["fc_fitting_id"] != float64(7) {
		t.Fatalf("unexpected body: %v", got.Body)
	}

	if _, err := env.run(t, "results", "document", "999"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing id, got %v", err)
	}
	if _, err := env.run(t, "results", "document", "abc"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for a malformed id, got %v", err)
	}
}
