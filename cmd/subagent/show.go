package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorewood/parallelus/internal/output"
	"github.com/gorewood/parallelus/internal/registry"
)

// newShowCmd creates the show command.
func newShowCmd() *cobra.Command {
	var idFlag string
	cmd := &cobra.Command{
		Use:   "show [<id>]",
		Short: "Display a single registry entry",
		Long: `Display a registry entry with its provenance, launcher handle and
deliverables.

Examples:
  subagent show --id 20260207-160000-ab12cd34
  subagent show 20260207-160000-ab12cd34 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := newPrinter(cmd)
			id, err := entryID(idFlag, args)
			if err != nil {
				return fail(printer, err)
			}
			s, err := openSession(cmd)
			if err != nil {
				return fail(printer, err)
			}
			entry, err := s.ctrl.Get(id)
			if err != nil {
				return fail(printer, err)
			}
			if printer.IsJSON() {
				return printer.WriteJSON(entry)
			}
			printEntry(printer, entry)
			return nil
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "Registry entry id")
	return cmd
}

func printEntry(printer *output.Printer, e *registry.Entry) {
	printer.Section(e.ID)
	printer.KeyValue("Status", e.Status.String())
	printer.KeyValue("Type", e.Type)
	printer.KeyValue("Slug", e.Slug)
	if e.Role != "" {
		printer.KeyValue("Role", e.Role)
	}
	printer.KeyValue("Path", e.Path)
	if e.ScopePath != "" {
		printer.KeyValue("Scope", e.ScopePath)
	}
	if e.SourceBranch != "" {
		printer.KeyValue("Source", strings.TrimSpace(e.SourceBranch+" "+e.SourceCommit))
	}
	printer.KeyValue("Launcher", e.LauncherKind)
	keys := make([]string, 0, len(e.LauncherHandle))
	for k := range e.LauncherHandle {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printer.KeyValue("  "+k, e.LauncherHandle[k])
	}
	printTime(printer, "Launched", e.LaunchedAt)
	printTime(printer, "Verified", e.VerifiedAt)
	printTime(printer, "Harvested", e.HarvestedAt)
	printTime(printer, "Aborted", e.AbortedAt)
	if e.AbortedReason != "" {
		printer.KeyValue("Reason", e.AbortedReason)
	}
	printTime(printer, "Cleaned", e.CleanedAt)

	if len(e.Deliverables) == 0 {
		return
	}
	printer.Section(fmt.Sprintf("Deliverables (%s)", e.DeliverablesStatus))
	for _, d := range e.Deliverables {
		printer.KeyValue(d.ID, fmt.Sprintf("%s  %s  (%d in baseline)", d.Status, d.SourceGlob, len(d.Baseline)))
	}
}

func printTime(printer *output.Printer, key string, t *time.Time) {
	if t != nil {
		printer.KeyValue(key, t.UTC().Format(time.RFC3339))
	}
}
