package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorewood/parallelus/internal/lifecycle"
	"github.com/gorewood/parallelus/internal/output"
)

var statusHeaders = []string{"ID", "Type", "Slug", "Status", "Deliverables", "Run Time", "Log Age", "Handle", "Last Log (UTC)"}

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var allFlag bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List subagents and their progress",
		Long: `List subagents with their lifecycle status, deliverable progress, run time
and how long ago their sandbox log was last written. Cleaned entries are
hidden unless --all is given.

Examples:
  subagent status
  subagent status --all --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := newPrinter(cmd)
			s, err := openSession(cmd)
			if err != nil {
				return fail(printer, err)
			}
			rows, err := s.ctrl.Rows(allFlag)
			if err != nil {
				return fail(printer, err)
			}
			if printer.IsJSON() {
				return printer.WriteJSON(map[string]any{"count": len(rows), "subagents": rows})
			}
			printStatusTable(printer, rows, nil)
			return nil
		},
	}
	cmd.Flags().BoolVar(&allFlag, "all", false, "Include cleaned entries")
	return cmd
}

// printStatusTable renders rows. When marker is set its result prefixes the id.
func printStatusTable(printer *output.Printer, rows []lifecycle.Row, marker func(id string) string) {
	if len(rows) == 0 {
		printer.Println("No subagents recorded.")
		return
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		id := r.ID
		if marker != nil {
			if m := marker(r.ID); m != "" {
				id = m + " " + id
			}
		}
		table = append(table, []string{
			id, r.Type, r.Slug, r.Status, r.Deliverables,
			formatClock(r.RunTime), formatLogAge(r.LogAge), r.Handle, formatLastLog(r.LastLog),
		})
	}
	printer.Table(statusHeaders, table)
}

// formatClock renders d as MM:SS; minutes are not wrapped into hours.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func formatLogAge(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return formatClock(*d)
}

func formatLastLog(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
