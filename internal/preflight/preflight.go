package preflight

import (
	"context"
	"path/filepath"

	"latdyn/internal/config"
	"latdyn/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every preflight check for the given config and working
// directory. An empty workDir falls back to [paths] work_dir.
func RunAll(ctx context.Context, cfg *config.Config, workDir string) []Result {
	if cfg == nil {
		return nil
	}
	if workDir == "" {
		workDir = cfg.Paths.WorkDir
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Working directory", workDir))

	if dbFile, err := cfg.DBFile(); err != nil {
		results = append(results, Result{Name: "Document store", Detail: err.Error()})
	} else {
		results = append(results, CheckStoreLocation(dbFile))
	}

	if cfg.Paths.LogDir != "" {
		results = append(results, checkCreatable("Log directory", cfg.Paths.LogDir, cfg.Paths.LogDir))
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, FromStatus(status))
	}
	return results
}

// Failed reports whether any required check did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

// FromStatus converts a dependency status into a preflight result.
func FromStatus(status deps.Status) Result {
	detail := status.Detail
	if status.Available {
		detail = status.Command
	}
	return Result{
		Name:     status.Name,
		Passed:   status.Available,
		Optional: status.Optional,
		Detail:   detail,
	}
}

// CheckStoreLocation verifies the document store's parent directory is
// writable, or that the nearest existing ancestor is when it does not exist
// yet (the store creates it on open).
func CheckStoreLocation(dbFile string) Result {
	return checkCreatable("Document store", filepath.Dir(dbFile), dbFile)
}

func checkCreatable(name, dir, display string) Result {
	for {
		if result := CheckDirectoryAccess(name, dir); result.Passed {
			result.Detail = display
			return result
		} else if exists(dir) {
			return result
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Result{Name: name, Detail: display + " (error: no writable ancestor)"}
		}
		dir = parent
	}
}
