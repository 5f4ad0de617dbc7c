package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"latdyn/internal/services"
)

// Operation names understood by the helper.
const (
	OpCutoffs     = "cutoffs"
	OpFit         = "fit"
	OpHarmonic    = "harmonic"
	OpAnharmonic  = "anharmonic"
	OpRenormalize = "renormalize"
	OpExpand      = "expand"
	OpPhonon      = "phonon"
	OpExport      = "export"
)

// Executor abstracts command execution for testability. It runs binary with
// args inside dir, feeding stdin, and returns captured stdout.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string, stdin []byte) ([]byte, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTimeout bounds every call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client invokes the oracle executable.
type Client struct {
	binary  string
	args    []string
	dir     string
	timeout time.Duration
	exec    Executor
}

// New constructs a client. command is the executable followed by any leading
// arguments; dir is the working directory the helper runs in.
func New(command []string, dir string, opts ...Option) (*Client, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "oracle", "init", "oracle command required", nil)
	}
	client := &Client{
		binary: command[0],
		args:   append([]string(nil), command[1:]...),
		dir:    dir,
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Dir returns the working directory used for every call.
func (c *Client) Dir() string {
	return c.dir
}

func (c *Client) call(ctx context.Context, op string, req, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.args...), op)
	out, err := c.exec.Run(callCtx, c.dir, c.binary, args, payload)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "oracle", op, fmt.Sprintf("exceeded %s", c.timeout), err)
		}
		return services.Wrap(services.ErrExternalTool, "oracle", op, "", err)
	}

	if err := json.Unmarshal(bytes.TrimSpace(out), resp); err != nil {
		return services.Wrap(services.ErrExternalTool, "oracle", op, "decode response", err)
	}
	return nil
}

// Cutoffs asks the helper for trial cutoffs derived from supercell geometry.
func (c *Client) Cutoffs(ctx context.Context, req CutoffsRequest) ([][]float64, error) {
	var resp CutoffsResponse
	if err := c.call(ctx, OpCutoffs, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Cutoffs) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "oracle", OpCutoffs, "no cutoffs returned", nil)
	}
	return resp.Cutoffs, nil
}

// Fit runs the force constant fit. A response without force constants is
// returned as-is; callers decide how to treat it.
func (c *Client) Fit(ctx context.Context, req FitRequest) (FitResponse, error) {
	var resp FitResponse
	err := c.call(ctx, OpFit, req, &resp)
	return resp, err
}

// Harmonic computes harmonic thermal properties.
func (c *Client) Harmonic(ctx context.Context, req HarmonicRequest) (HarmonicResponse, error) {
	var resp HarmonicResponse
	err := c.call(ctx, OpHarmonic, req, &resp)
	return resp, err
}

// Anharmonic computes Gruneisen parameters and thermal expansion.
func (c *Client) Anharmonic(ctx context.Context, req AnharmonicRequest) (AnharmonicResponse, error) {
	var resp AnharmonicResponse
	err := c.call(ctx, OpAnharmonic, req, &resp)
	return resp, err
}

// Renormalize runs one temperature. A JSON null response yields (nil, nil).
func (c *Client) Renormalize(ctx context.Context, req RenormalizeRequest) (*RenormRecord, error) {
	var resp *RenormRecord
	if err := c.call(ctx, OpRenormalize, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Expand builds thermally expanded structures, cluster spaces and force
// constants, one per target.
func (c *Client) Expand(ctx context.Context, req ExpandRequest) (ExpandResponse, error) {
	var resp ExpandResponse
	if err := c.call(ctx, OpExpand, req, &resp); err != nil {
		return ExpandResponse{}, err
	}
	if len(resp.Structures) != len(req.Targets) {
		return ExpandResponse{}, services.Wrap(services.ErrExternalTool, "oracle", OpExpand,
			fmt.Sprintf("expected %d structures, got %d", len(req.Targets), len(resp.Structures)), nil)
	}
	return resp, nil
}

// Phonon derives DOS, band structures and a serialized force constant payload.
func (c *Client) Phonon(ctx context.Context, req PhononRequest) (PhononResponse, error) {
	var resp PhononResponse
	err := c.call(ctx, OpPhonon, req, &resp)
	return resp, err
}

// Export writes force constants in an external format.
func (c *Client) Export(ctx context.Context, req ExportRequest) error {
	var resp ExportResponse
	return c.call(ctx, OpExport, req, &resp)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return nil, fmt.Errorf("%w: %s", err, lastLines(detail, 5))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
