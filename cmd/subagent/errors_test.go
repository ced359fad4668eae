package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gorewood/parallelus/internal/launcher"
	"github.com/gorewood/parallelus/internal/lifecycle"
	"github.com/gorewood/parallelus/internal/output"
	"github.com/gorewood/parallelus/internal/registry"
)

func TestExitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: x", registry.ErrEntryNotFound), output.ExitUserError},
		{"invalid request", fmt.Errorf("%w: slug is required", lifecycle.ErrInvalidRequest), output.ExitUserError},
		{"unharvested", fmt.Errorf("%w for x", lifecycle.ErrDeliverablesUnharvested), output.ExitConflict},
		{"duplicate", lifecycle.ErrDuplicateLaunch, output.ExitConflict},
		{"transition", lifecycle.ErrInvalidTransition, output.ExitConflict},
		{"marker", lifecycle.ErrMarkerMismatch, output.ExitConflict},
		{"no sandbox path", fmt.Errorf("%w: x", lifecycle.ErrSandboxPathMissing), output.ExitConflict},
		{"not nudgeable", launcher.ErrNotNudgeable, output.ExitConflict},
		{"corrupt", fmt.Errorf("%w: bad json", registry.ErrRegistryCorrupt), output.ExitSystemError},
		{"locked", registry.ErrRegistryLocked, output.ExitSystemError},
		{"io", errors.New("permission denied"), output.ExitSystemError},
		{"already classified", output.NewUserError("bad flag"), output.ExitUserError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exitError(tt.err)
			if got.Code != tt.want {
				t.Errorf("exitError(%v).Code = %d, want %d", tt.err, got.Code, tt.want)
			}
			if got.Message != tt.err.Error() {
				t.Errorf("Message = %q, want %q", got.Message, tt.err.Error())
			}
		})
	}
}

func TestExitError_KeepsWrappedCode(t *testing.T) {
	err := fmt.Errorf("provisioning sandbox: %w", output.NewSystemError("git command failed: not a repository"))
	got := exitError(err)
	if got.Code != output.ExitSystemError {
		t.Errorf("Code = %d, want %d", got.Code, output.ExitSystemError)
	}
	if got.Message != err.Error() {
		t.Errorf("Message = %q, want the full wrapped message", got.Message)
	}
}
