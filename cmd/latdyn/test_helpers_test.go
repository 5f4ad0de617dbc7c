package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"latdyn/internal/artifacts"
	"latdyn/internal/config"
	"latdyn/internal/shengbte"
	"latdyn/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	dir        *artifacts.Dir
	oracle     *testsupport.FakeOracle
	solver     *stubSolver
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithStubbedBinaries()}, opts...)...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	dir, err := artifacts.Open(cfg.Paths.WorkDir)
	if err != nil {
		t.Fatalf("open work dir: %v", err)
	}
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		dir:        dir,
		oracle:     &testsupport.FakeOracle{},
		solver:     &stubSolver{table: artifacts.KappaConvergedFile},
	}
}

func (e *cliTestEnv) deps() taskDeps {
	return taskDeps{
		newOracle: func(*config.Config, *artifacts.Dir) (pipelineOracle, error) {
			return e.oracle, nil
		},
		shengbteOptions: []shengbte.Option{shengbte.WithExecutor(e.solver)},
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommandWith(e.deps())
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--dir", e.dir.Root()}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (e *cliTestEnv) runWithoutDir(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommandWith(e.deps())
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// stubSolver stands in for the ShengBTE binary.
type stubSolver struct {
	code  int
	table string
	calls int
}

const kappaRows = "100.0 30.0 0 0 0 30.0 0 0 0 30.0 1\n200.0 15.0 0 0 0 15.0 0 0 0 15.0 1\n"

func (s *stubSolver) Run(_ context.Context, dir, _ string, _ []string, stdout, _ io.Writer) (int, error) {
	s.calls++
	_, _ = io.WriteString(stdout, "stub solver\n")
	if s.table != "" {
		if err := os.WriteFile(filepath.Join(dir, s.table), []byte(kappaRows), 0o644); err != nil {
			return -1, err
		}
	}
	return s.code, nil
}
