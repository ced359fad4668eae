// Package mcp provides a Model Context Protocol server for the subagent
// registry. It lets an MCP-capable agent inspect subagents and drive the
// non-destructive lifecycle steps (verify and harvest) without a shell.
package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gorewood/parallelus/internal/lifecycle"
)

// NewServer creates an MCP server with all subagent tools registered.
func NewServer(version string, ctrl *lifecycle.Controller) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "parallelus-subagents",
		Version: version,
	}, nil)
	registerTools(server, ctrl)
	return server
}

func boolPtr(b bool) *bool {
	return &b
}

// readOnlyAnnotations returns annotations for read-only tools.
func readOnlyAnnotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(false),
	}
}

// writeAnnotations returns annotations for tools that update the registry
// without deleting anything.
func writeAnnotations(idempotent bool) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		DestructiveHint: boolPtr(false),
		IdempotentHint:  idempotent,
		OpenWorldHint:   boolPtr(false),
	}
}

func registerTools(server *mcp.Server, ctrl *lifecycle.Controller) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "status",
		Description: "List subagents with status, deliverable progress, run time and log age. Cleaned entries are hidden unless all=true.",
		Annotations: readOnlyAnnotations(),
	}, handleStatus(ctrl))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "show",
		Description: "Display one registry entry by ID, including its deliverables and baseline fingerprints.",
		Annotations: readOnlyAnnotations(),
	}, handleShow(ctrl))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "verify",
		Description: "Mark a running subagent as verified once its work is complete and ready to harvest.",
		Annotations: writeAnnotations(false),
	}, handleVerify(ctrl))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "harvest",
		Description: "Copy new or changed deliverable files from a subagent sandbox into the workspace. Harvesting again without changes copies nothing.",
		Annotations: writeAnnotations(true),
	}, handleHarvest(ctrl))
}
