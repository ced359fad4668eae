package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its trimmed stdout.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Tmux launches subagents into a new window of the current tmux session.
// The handle records the window target and the stable pane id.
type Tmux struct {
	run    Runner
	inTmux func() bool
}

// NewTmux creates a tmux launcher. A nil runner uses ExecRunner.
func NewTmux(run Runner) *Tmux {
	if run == nil {
		run = ExecRunner
	}
	return &Tmux{run: run, inTmux: inTmux}
}

// Kind implements Launcher.
func (t *Tmux) Kind() string { return KindAuto }

// Start opens a detached window in the sandbox and runs the command there,
// appending its output to the log file.
func (t *Tmux) Start(ctx context.Context, spec Spec) (map[string]string, error) {
	if !t.inTmux() {
		return nil, errors.New("auto launcher requires a tmux session (TMUX is not set)")
	}
	if spec.Command == "" {
		return nil, errors.New("auto launcher needs a command")
	}

	args := []string{
		"new-window", "-d", "-P",
		"-F", "#{session_name}:#{window_index}\t#{pane_id}",
		"-n", windowName(spec),
		"-c", spec.SandboxPath,
	}
	for _, kv := range Env(spec) {
		args = append(args, "-e", kv)
	}
	args = append(args, buildPaneCommand(spec))

	out, err := t.run(ctx, "tmux", args...)
	if err != nil {
		return nil, fmt.Errorf("starting tmux window: %w", err)
	}
	window, pane, ok := strings.Cut(out, "\t")
	if !ok || pane == "" {
		return nil, fmt.Errorf("unexpected tmux output %q", out)
	}
	return map[string]string{"window": window, "pane": pane}, nil
}

// Nudge types message into the subagent's pane and presses Enter.
func (t *Tmux) Nudge(ctx context.Context, handle map[string]string, message string) error {
	target := handle["pane"]
	if target == "" {
		target = handle["window"]
	}
	if target == "" {
		return fmt.Errorf("%w: no tmux pane recorded", ErrNotNudgeable)
	}
	if _, err := t.run(ctx, "tmux", "send-keys", "-t", target, "-l", message); err != nil {
		return fmt.Errorf("sending to %s: %w", target, err)
	}
	if _, err := t.run(ctx, "tmux", "send-keys", "-t", target, "Enter"); err != nil {
		return fmt.Errorf("sending to %s: %w", target, err)
	}
	return nil
}

func windowName(spec Spec) string {
	short := spec.ID
	if i := strings.LastIndex(short, "-"); i >= 0 && i < len(short)-1 {
		short = short[i+1:]
	}
	return "sa:" + spec.Slug + ":" + short
}

// buildPaneCommand keeps the pane open after the command exits so the
// operator can read the final output.
func buildPaneCommand(spec Spec) string {
	prefix := "tmux set-option remain-on-exit on 2>/dev/null;"
	if spec.LogPath == "" {
		return prefix + " " + spec.Command
	}
	return fmt.Sprintf("%s { %s; } 2>&1 | tee -a %s", prefix, spec.Command, shellQuote(spec.LogPath))
}
