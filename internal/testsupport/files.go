package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"latdyn/internal/artifacts"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WorkDir opens a fresh artifact directory under t.TempDir.
func WorkDir(t testing.TB) *artifacts.Dir {
	t.Helper()

	dir, err := artifacts.Open(t.TempDir())
	if err != nil {
		t.Fatalf("artifacts.Open: %v", err)
	}
	return dir
}

// Chdir switches the process working directory for the duration of the test.
func Chdir(t testing.TB, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(prev)
	})
}
