package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorewood/parallelus/internal/monitor"
	"github.com/gorewood/parallelus/internal/output"
)

type monitorOptions struct {
	heartbeat  time.Duration
	runtime    time.Duration
	interval   time.Duration
	once       bool
	iterations int
}

// newMonitorCmd creates the monitor command.
func newMonitorCmd() *cobra.Command {
	var opts monitorOptions
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch running subagents until one needs attention",
		Long: `Watch running subagents, re-evaluating whenever the registry changes and
every --interval. Monitoring stops when:

  - no subagent is running (exit 0)
  - a running subagent's log has been silent longer than --heartbeat,
    marked "!" (exit 3)
  - a running subagent has run longer than --runtime, marked "^" (exit 3)

A zero threshold disables that check.

Examples:
  subagent monitor
  subagent monitor --heartbeat 5m --runtime 30m
  subagent monitor --once --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.heartbeat, "heartbeat", monitor.DefaultHeartbeat, "Alert when a running subagent's log is older than this")
	cmd.Flags().DurationVar(&opts.runtime, "runtime", monitor.DefaultRuntime, "Alert when a subagent has run longer than this")
	cmd.Flags().DurationVar(&opts.interval, "interval", monitor.DefaultInterval, "Poll interval between registry changes")
	cmd.Flags().BoolVar(&opts.once, "once", false, "Evaluate once and exit")
	cmd.Flags().IntVar(&opts.iterations, "iterations", 0, "Stop after this many evaluations (0 = unlimited)")
	return cmd
}

func runMonitor(cmd *cobra.Command, opts monitorOptions) error {
	printer := newPrinter(cmd)
	s, err := openSession(cmd)
	if err != nil {
		return fail(printer, err)
	}

	iterations := opts.iterations
	if opts.once {
		iterations = 1
	}
	mon := monitor.New(s.ctrl, s.registryPath,
		monitor.WithThresholds(monitor.Thresholds{Heartbeat: opts.heartbeat, Runtime: opts.runtime}),
		monitor.WithInterval(opts.interval),
		monitor.WithMaxIterations(iterations),
		monitor.WithLogger(s.logger),
		monitor.WithReportFunc(func(r monitor.Report) {
			if printer.IsJSON() {
				return
			}
			printer.Stderr("[%s] %d running, %d alert(s)\n", time.Now().UTC().Format("15:04:05"), r.Running, len(r.Alerts))
		}),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	report, err := mon.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fail(printer, err)
	}

	if printer.IsJSON() {
		if werr := printer.WriteJSON(map[string]any{
			"outcome": outcomeName(report.Outcome),
			"running": report.Running,
			"alerts":  report.Alerts,
			"rows":    report.Rows,
		}); werr != nil {
			return werr
		}
	} else {
		printStatusTable(printer, report.Rows, func(id string) string {
			if a, ok := report.AlertFor(id); ok {
				return a.Marker()
			}
			return ""
		})
		for _, a := range report.Alerts {
			printer.Println(a.Marker() + " " + a.ID)
		}
	}

	switch report.Outcome {
	case monitor.Attention:
		ids := make([]string, 0, len(report.Alerts))
		for _, a := range report.Alerts {
			ids = append(ids, a.ID)
		}
		exitErr := output.NewConflictError(fmt.Sprintf("%d subagent(s) require manual attention: %s",
			len(ids), strings.Join(ids, ", ")))
		if !printer.IsJSON() {
			printer.Error(exitErr)
		}
		return exitErr
	case monitor.Idle:
		printer.Stderr("No running subagents detected\n")
	}
	return nil
}

func outcomeName(o monitor.Outcome) string {
	switch o {
	case monitor.Idle:
		return "idle"
	case monitor.Attention:
		return "attention"
	default:
		return "running"
	}
}
