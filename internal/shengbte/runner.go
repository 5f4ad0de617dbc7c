package shengbte

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"latdyn/internal/artifacts"
	"latdyn/internal/logging"
	"latdyn/internal/services"
)

// Executor abstracts command execution for testability. It returns the
// process exit code; err is reserved for failures to start or wait.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string, stdout, stderr io.Writer) (int, error)
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// Runner runs ShengBTE in a working directory.
type Runner struct {
	binary string
	args   []string
	exec   Executor
	logger *slog.Logger
}

// NewRunner constructs a runner for command (executable plus leading args).
func NewRunner(command []string, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "shengbte", "init", "shengbte command required", nil)
	}
	r := &Runner{
		binary: command[0],
		args:   append([]string(nil), command[1:]...),
		exec:   commandExecutor{},
		logger: logging.NewComponentLogger(logger, "shengbte"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RequiredInputs are the force constant files the solver reads.
var RequiredInputs = []string{artifacts.PhonopySecondOrderFile, artifacts.ShengBTEThirdOrderFile}

// Run writes CONTROL, runs the solver and returns the parsed kappa table.
func (r *Runner) Run(ctx context.Context, dir *artifacts.Dir, control Control) ([]KappaPoint, error) {
	logger := logging.WithContext(ctx, r.logger)

	var missing []string
	for _, name := range RequiredInputs {
		if !dir.Exists(name) {
			missing = append(missing, dir.Path(name))
		}
	}
	if len(missing) > 0 {
		return nil, &services.MissingOutputError{Candidates: missing}
	}

	if err := dir.WriteFile(artifacts.ShengBTEControlFile, control.Marshal()); err != nil {
		return nil, err
	}

	stdout, err := os.Create(dir.Path(artifacts.ShengBTEStdoutFile))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", artifacts.ShengBTEStdoutFile, err)
	}
	defer stdout.Close()
	// Unbuffered so the error log can be tailed while the solver runs.
	stderr, err := os.Create(dir.Path(artifacts.ShengBTEStderrFile))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", artifacts.ShengBTEStderrFile, err)
	}
	defer stderr.Close()

	logger.Info("running ShengBTE",
		logging.String("command", strings.Join(append([]string{r.binary}, r.args...), " ")),
		logging.Any("ngrid", control.NGrid),
		logging.Any("scell", control.Scell),
	)
	start := time.Now()
	code, err := r.exec.Run(ctx, dir.Root(), r.binary, r.args, stdout, stderr)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "shengbte", "run", r.binary, err)
	}
	if code != 0 {
		logging.ErrorWithContext(logger, "ShengBTE failed", "shengbte_failed",
			logging.Int("exit_code", code),
			logging.String(logging.FieldErrorHint, "see "+dir.Path(artifacts.ShengBTEStderrFile)),
		)
		return nil, &services.TransportSolverError{ExitCode: code, ErrLog: dir.Path(artifacts.ShengBTEStderrFile)}
	}

	points, name, err := LoadKappa(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("ShengBTE finished",
		logging.String("table", name),
		logging.Int("temperatures", len(points)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return points, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
