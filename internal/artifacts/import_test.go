package artifacts_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"latdyn/internal/artifacts"
	"latdyn/internal/services"
)

func TestImportFromCopiesMissingFiles(t *testing.T) {
	src := t.TempDir()
	for name, body := range map[string]string{
		artifacts.PhonopySecondOrderFile: "fc2 from fit\n",
		artifacts.ShengBTEThirdOrderFile: "fc3 from fit\n",
	} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(body), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	dst := openTemp(t)
	if err := dst.WriteFile(artifacts.ShengBTEThirdOrderFile, []byte("local fc3\n")); err != nil {
		t.Fatalf("seed local: %v", err)
	}

	copied, err := dst.ImportFrom(src, artifacts.PhonopySecondOrderFile, artifacts.ShengBTEThirdOrderFile)
	if err != nil {
		t.Fatalf("ImportFrom: %v", err)
	}
	if diff := cmp.Diff([]string{artifacts.PhonopySecondOrderFile}, copied); diff != "" {
		t.Fatalf("copied mismatch (-want +got):\n%s", diff)
	}
	got, err := dst.ReadFile(artifacts.PhonopySecondOrderFile)
	if err != nil || string(got) != "fc2 from fit\n" {
		t.Fatalf("imported content = %q, %v", got, err)
	}
	local, _ := dst.ReadFile(artifacts.ShengBTEThirdOrderFile)
	if string(local) != "local fc3\n" {
		t.Fatalf("existing file overwritten: %q", local)
	}
}

func TestImportFromMissingSource(t *testing.T) {
	dst := openTemp(t)

	_, err := dst.ImportFrom(t.TempDir(), artifacts.PhonopySecondOrderFile)
	var missing *services.MissingOutputError
	if !errors.As(err, &missing) || len(missing.Candidates) != 1 {
		t.Fatalf("expected MissingOutputError, got %v", err)
	}
	if dst.Exists(artifacts.PhonopySecondOrderFile) {
		t.Fatal("nothing should be copied when a source is missing")
	}
}
