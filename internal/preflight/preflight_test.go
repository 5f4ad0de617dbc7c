package preflight_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"latdyn/internal/preflight"
	"latdyn/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := preflight.CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := preflight.CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckStoreLocationWalksToExistingAncestor(t *testing.T) {
	base := t.TempDir()
	result := preflight.CheckStoreLocation(filepath.Join(base, "a", "b", "latdyn.db"))
	if !result.Passed {
		t.Fatalf("expected pass when ancestor is writable, got: %s", result.Detail)
	}
}

func TestRunAllWithStubbedBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	results := preflight.RunAll(context.Background(), cfg, "")
	if preflight.Failed(results) {
		t.Fatalf("expected all checks to pass, got %#v", results)
	}
	names := make(map[string]bool, len(results))
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"Working directory", "Document store", "Oracle", "ShengBTE"} {
		if !names[want] {
			t.Fatalf("missing check %q in %#v", want, results)
		}
	}
}

func TestRunAllMissingOracleFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Oracle.Command = "definitely-missing-oracle"
	cfg.ShengBTE.Command = "definitely-missing-shengbte"

	results := preflight.RunAll(context.Background(), cfg, t.TempDir())
	if !preflight.Failed(results) {
		t.Fatalf("expected failure when oracle binary is missing: %#v", results)
	}
	for _, r := range results {
		if r.Name == "ShengBTE" && !r.Optional {
			t.Fatal("expected shengbte to be optional")
		}
	}
}
