package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	subagentmcp "github.com/gorewood/parallelus/internal/mcp"
)

// newServeCmd creates the serve command for running as an MCP server.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as MCP server (stdio transport)",
		Long: `Run the subagent registry as a Model Context Protocol (MCP) server over stdio.

Configure in your agent's MCP settings:
  {
    "mcpServers": {
      "subagents": {
        "command": "subagent",
        "args": ["serve"]
      }
    }
  }

Available tools: status, show, verify, harvest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			server := subagentmcp.NewServer(buildVersion(), s.ctrl)
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
