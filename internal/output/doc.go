// Package output provides structured output and error handling for the subagent CLI.
//
// Every command writes through a Printer, which switches between
// human-readable text and JSON based on the --json flag:
//
//	printer := output.NewPrinter(cmd.OutOrStdout(), isJSONMode(cmd), useColor(cmd)).
//		WithStderr(cmd.ErrOrStderr())
//	printer.Success(map[string]any{"message": "Aborted " + id, "id": id})
//	printer.Error(err)
//
// Human errors, warnings and progress notes go to the stderr writer so that
// stdout stays machine-consumable (launch prints only the new entry id).
// In JSON mode everything, including errors, is a JSON document on stdout:
//
//	{"error": "deliverables remain unharvested for 20260207-160000-ab12cd34", "code": 3}
//
// # Exit Codes
//
//	output.ExitSuccess     // 0
//	output.ExitUserError   // 1: bad arguments, unknown entry id
//	output.ExitSystemError // 2: I/O failure, corrupt or locked registry
//	output.ExitConflict    // 3: transition refused by the entry's state
//
// Styling uses lipgloss and is disabled automatically when stdout is not a
// terminal (see IsTTY and ResolveColorMode).
package output
