package main

import (
	"errors"

	"github.com/gorewood/parallelus/internal/launcher"
	"github.com/gorewood/parallelus/internal/lifecycle"
	"github.com/gorewood/parallelus/internal/output"
	"github.com/gorewood/parallelus/internal/registry"
)

// exitError classifies err into the CLI exit code taxonomy.
func exitError(err error) *output.ExitError {
	if exitErr, ok := err.(*output.ExitError); ok { //nolint:errorlint // already classified at the top level
		return exitErr
	}

	msg := err.Error()
	var wrapped *output.ExitError
	switch {
	case errors.Is(err, registry.ErrEntryNotFound),
		errors.Is(err, lifecycle.ErrInvalidRequest):
		return output.NewUserErrorWithCause(msg, err)
	case errors.Is(err, lifecycle.ErrDeliverablesUnharvested),
		errors.Is(err, lifecycle.ErrDuplicateLaunch),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrMarkerMissing),
		errors.Is(err, lifecycle.ErrMarkerMismatch),
		errors.Is(err, lifecycle.ErrSandboxPathMissing),
		errors.Is(err, launcher.ErrNotNudgeable):
		return output.NewConflictErrorWithCause(msg, err)
	case errors.As(err, &wrapped):
		return &output.ExitError{Code: wrapped.Code, Message: msg, Cause: err}
	default:
		return output.NewSystemErrorWithCause(msg, err)
	}
}

// fail prints err and returns it classified for the exit code.
func fail(printer *output.Printer, err error) error {
	exitErr := exitError(err)
	printer.Error(exitErr)
	return exitErr
}
