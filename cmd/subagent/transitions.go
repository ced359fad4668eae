package main

import (
	"github.com/spf13/cobra"
)

// newVerifyCmd creates the verify command.
func newVerifyCmd() *cobra.Command {
	var idFlag string
	cmd := &cobra.Command{
		Use:   "verify [<id>]",
		Short: "Mark a running subagent as finished",
		Long: `Mark a running subagent as verified: its work is complete and its
deliverables can be harvested.

Examples:
  subagent verify --id 20260207-160000-ab12cd34`,
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
			entry, err := s.ctrl.Verify(cmd.Context(), id)
			if err != nil {
				return fail(printer, err)
			}
			return printer.Success(map[string]any{
				"message": "Verified " + entry.ID,
				"id":      entry.ID,
				"status":  entry.Status.String(),
			})
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "Registry entry id")
	return cmd
}

// newAbortCmd creates the abort command.
func newAbortCmd() *cobra.Command {
	var idFlag, reasonFlag string
	cmd := &cobra.Command{
		Use:   "abort [<id>]",
		Short: "Record that a subagent was stopped",
		Long: `Record that a subagent was stopped before finishing. The status becomes
aborted_<reason> and the sandbox is kept for inspection; run cleanup to
delete it.

Examples:
  subagent abort --id 20260207-160000-ab12cd34 --reason timeout`,
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
			entry, err := s.ctrl.Abort(cmd.Context(), id, reasonFlag)
			if err != nil {
				return fail(printer, err)
			}
			return printer.Success(map[string]any{
				"message": "Aborted " + entry.ID,
				"id":      entry.ID,
				"status":  entry.Status.String(),
				"reason":  entry.AbortedReason,
			})
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "Registry entry id")
	cmd.Flags().StringVar(&reasonFlag, "reason", "", "Why the subagent was stopped (required)")
	return cmd
}

// newCleanupCmd creates the cleanup command.
func newCleanupCmd() *cobra.Command {
	var idFlag string
	var forceFlag bool
	cmd := &cobra.Command{
		Use:   "cleanup [<id>]",
		Short: "Delete a subagent's sandbox",
		Long: `Delete a subagent's sandbox and mark the entry cleaned.

Cleanup refuses while any deliverable is unharvested or the subagent is still
running. --force skips both checks; unharvested files are lost.

Examples:
  subagent cleanup --id 20260207-160000-ab12cd34
  subagent cleanup --id 20260207-160000-ab12cd34 --force`,
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
			entry, err := s.ctrl.Cleanup(cmd.Context(), id, forceFlag)
			if err != nil {
				return fail(printer, err)
			}
			return printer.Success(map[string]any{
				"message": "Cleaned up " + entry.ID,
				"id":      entry.ID,
				"status":  entry.Status.String(),
				"forced":  forceFlag,
			})
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "Registry entry id")
	cmd.Flags().BoolVar(&forceFlag, "force", false, "Delete even with unharvested deliverables or while running")
	return cmd
}

// newNudgeCmd creates the nudge command.
func newNudgeCmd() *cobra.Command {
	var idFlag, messageFlag string
	cmd := &cobra.Command{
		Use:   "nudge [<id>]",
		Short: "Send a message to a running subagent",
		Long: `Type a message into a running subagent's tmux pane, followed by Enter.
Manually launched subagents cannot be nudged.

Examples:
  subagent nudge --id 20260207-160000-ab12cd34 --message "wrap up and write the report"`,
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
			if err := s.ctrl.Nudge(cmd.Context(), id, messageFlag); err != nil {
				return fail(printer, err)
			}
			return printer.Success(map[string]any{
				"message": "Nudged " + id,
				"id":      id,
			})
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "Registry entry id")
	cmd.Flags().StringVar(&messageFlag, "message", "", "Text to send (required)")
	return cmd
}
