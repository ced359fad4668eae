package main

import (
	"sort"

	"github.com/spf13/cobra"
)

// newHarvestCmd creates the harvest command.
func newHarvestCmd() *cobra.Command {
	var idFlag string
	cmd := &cobra.Command{
		Use:   "harvest [<id>]",
		Short: "Copy new deliverable files into the workspace",
		Long: `Copy deliverable files that are new or changed since the last harvest from
the subagent's sandbox into the workspace. Harvesting again without changes
copies nothing and succeeds.

Examples:
  subagent harvest --id 20260207-160000-ab12cd34
  subagent harvest --id 20260207-160000-ab12cd34 --json`,
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
			report, err := s.ctrl.Harvest(cmd.Context(), id)
			if err != nil {
				return fail(printer, err)
			}

			if printer.IsJSON() {
				return printer.WriteJSON(report)
			}
			printer.Stderr("Harvested deliverables for %s: %d new file(s)\n", report.ID, report.Total)
			ids := make([]string, 0, len(report.Copied))
			for deliverable := range report.Copied {
				ids = append(ids, deliverable)
			}
			sort.Strings(ids)
			for _, deliverable := range ids {
				for _, path := range report.Copied[deliverable] {
					printer.Stderr("  %s: %s\n", deliverable, path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "Registry entry id")
	return cmd
}
