package output

import (
	"errors"
	"fmt"
	"testing"
)

func TestGetExitCode(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "user", err: NewUserError("bad flag"), want: ExitUserError},
		{name: "system", err: NewSystemErrorWithCause("io", cause), want: ExitSystemError},
		{name: "conflict", err: NewConflictError("state"), want: ExitConflict},
		{name: "wrapped conflict", err: fmt.Errorf("cleanup: %w", NewConflictError("state")), want: ExitConflict},
		{name: "untyped", err: cause, want: ExitUserError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("registry locked")
	err := NewSystemErrorWithCause("could not acquire registry lock", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if err.Error() != "could not acquire registry lock" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("underlying")
	tests := []struct {
		name      string
		err       *ExitError
		wantCode  int
		wantCause bool
	}{
		{"user", NewUserError("m"), ExitUserError, false},
		{"user with cause", NewUserErrorWithCause("m", cause), ExitUserError, true},
		{"system", NewSystemError("m"), ExitSystemError, false},
		{"system with cause", NewSystemErrorWithCause("m", cause), ExitSystemError, true},
		{"conflict", NewConflictError("m"), ExitConflict, false},
		{"conflict with cause", NewConflictErrorWithCause("m", cause), ExitConflict, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode || tt.err.Message != "m" {
				t.Errorf("got %+v, want code %d", tt.err, tt.wantCode)
			}
			if got := errors.Is(tt.err, cause); got != tt.wantCause {
				t.Errorf("errors.Is(err, cause) = %v, want %v", got, tt.wantCause)
			}
		})
	}
}
