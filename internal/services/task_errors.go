package services

import (
	"fmt"
	"strings"
)

// EmptyInputError reports that a task received no usable input records.
type EmptyInputError struct {
	What string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("no %s found", e.What)
}

func (e *EmptyInputError) Unwrap() error { return ErrValidation }

// FittingFailedError reports that the force-constant fit produced no result.
type FittingFailedError struct {
	Reason string
}

func (e *FittingFailedError) Error() string {
	if e.Reason == "" {
		return "force constant fitting failed"
	}
	return "force constant fitting failed: " + e.Reason
}

func (e *FittingFailedError) Unwrap() error { return ErrExternalTool }

// TransportSolverError reports a non-zero exit from the transport solver.
type TransportSolverError struct {
	ExitCode int
	ErrLog   string
}

func (e *TransportSolverError) Error() string {
	return fmt.Sprintf("ShengBTE exited with code %d; see %s", e.ExitCode, e.ErrLog)
}

func (e *TransportSolverError) Unwrap() error { return ErrExternalTool }

// MissingOutputError reports that none of the expected output files exist.
type MissingOutputError struct {
	Candidates []string
}

func (e *MissingOutputError) Error() string {
	return "could not find any of: " + strings.Join(e.Candidates, ", ")
}

func (e *MissingOutputError) Unwrap() error { return ErrNotFound }
