package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gorewood/parallelus/internal/lifecycle"
	"github.com/gorewood/parallelus/internal/registry"
)

// --- Status tool ---

// StatusInput is the input for the status tool.
type StatusInput struct {
	All bool `json:"all,omitempty" jsonschema:"include cleaned entries"`
}

// StatusRow is one subagent in the status output.
type StatusRow struct {
	ID           string `json:"id"                    jsonschema:"registry entry ID"`
	Type         string `json:"type"                  jsonschema:"sandbox type (throwaway or worktree)"`
	Slug         string `json:"slug"                  jsonschema:"subagent slug"`
	Status       string `json:"status"                jsonschema:"lifecycle status"`
	Deliverables string `json:"deliverables"          jsonschema:"harvested/total deliverables and aggregate status"`
	RunSeconds   int64  `json:"run_seconds"           jsonschema:"seconds since launch"`
	LogAgeSecs   *int64 `json:"log_age_seconds,omitempty" jsonschema:"seconds since the sandbox log was last written"`
	Handle       string `json:"handle"                jsonschema:"launcher handle (tmux pane or launcher kind)"`
	Path         string `json:"path"                  jsonschema:"sandbox path"`
}

// StatusOutput is the output for the status tool.
type StatusOutput struct {
	Count   int         `json:"count"   jsonschema:"number of subagents listed"`
	Running int         `json:"running" jsonschema:"number of running subagents"`
	Rows    []StatusRow `json:"rows"    jsonschema:"subagents in registry order"`
}

func handleStatus(ctrl *lifecycle.Controller) mcp.ToolHandlerFor[StatusInput, StatusOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
		rows, err := ctrl.Rows(input.All)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("reading registry: %w", err)
		}
		out := StatusOutput{Count: len(rows), Rows: make([]StatusRow, 0, len(rows))}
		for _, r := range rows {
			if r.Running {
				out.Running++
			}
			out.Rows = append(out.Rows, toStatusRow(r))
		}
		return nil, out, nil
	}
}

func toStatusRow(r lifecycle.Row) StatusRow {
	row := StatusRow{
		ID:           r.ID,
		Type:         r.Type,
		Slug:         r.Slug,
		Status:       r.Status,
		Deliverables: r.Deliverables,
		RunSeconds:   int64(r.RunTime.Seconds()),
		Handle:       r.Handle,
		Path:         r.Path,
	}
	if r.LogAge != nil {
		secs := int64(r.LogAge.Seconds())
		row.LogAgeSecs = &secs
	}
	return row
}

// --- Show tool ---

// ShowInput is the input for the show tool.
type ShowInput struct {
	ID string `json:"id" jsonschema:"registry entry ID (required)"`
}

// ShowOutput is the output for the show tool.
type ShowOutput struct {
	Entry *registry.Entry `json:"entry" jsonschema:"the registry entry"`
}

func handleShow(ctrl *lifecycle.Controller) mcp.ToolHandlerFor[ShowInput, ShowOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ShowInput) (*mcp.CallToolResult, ShowOutput, error) {
		id, err := requireID(input.ID)
		if err != nil {
			return nil, ShowOutput{}, err
		}
		entry, err := ctrl.Get(id)
		if err != nil {
			return nil, ShowOutput{}, fmt.Errorf("getting entry: %w", err)
		}
		return nil, ShowOutput{Entry: entry}, nil
	}
}

// --- Verify tool ---

// VerifyInput is the input for the verify tool.
type VerifyInput struct {
	ID string `json:"id" jsonschema:"registry entry ID (required)"`
}

// VerifyOutput is the output for the verify tool.
type VerifyOutput struct {
	ID     string `json:"id"     jsonschema:"registry entry ID"`
	Status string `json:"status" jsonschema:"status after the transition"`
}

func handleVerify(ctrl *lifecycle.Controller) mcp.ToolHandlerFor[VerifyInput, VerifyOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input VerifyInput) (*mcp.CallToolResult, VerifyOutput, error) {
		id, err := requireID(input.ID)
		if err != nil {
			return nil, VerifyOutput{}, err
		}
		entry, err := ctrl.Verify(ctx, id)
		if err != nil {
			return nil, VerifyOutput{}, err
		}
		return nil, VerifyOutput{ID: entry.ID, Status: entry.Status.String()}, nil
	}
}

// --- Harvest tool ---

// HarvestInput is the input for the harvest tool.
type HarvestInput struct {
	ID string `json:"id" jsonschema:"registry entry ID (required)"`
}

// HarvestOutput is the output for the harvest tool.
type HarvestOutput struct {
	ID                 string              `json:"id"                  jsonschema:"registry entry ID"`
	Total              int                 `json:"total"               jsonschema:"number of files copied into the workspace"`
	Copied             map[string][]string `json:"copied"              jsonschema:"copied workspace-relative paths per deliverable ID"`
	DeliverablesStatus string              `json:"deliverables_status" jsonschema:"aggregate status after harvest (waiting or harvested)"`
}

func handleHarvest(ctrl *lifecycle.Controller) mcp.ToolHandlerFor[HarvestInput, HarvestOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input HarvestInput) (*mcp.CallToolResult, HarvestOutput, error) {
		id, err := requireID(input.ID)
		if err != nil {
			return nil, HarvestOutput{}, err
		}
		report, err := ctrl.Harvest(ctx, id)
		if err != nil {
			return nil, HarvestOutput{}, err
		}
		return nil, HarvestOutput{
			ID:                 report.ID,
			Total:              report.Total,
			Copied:             report.Copied,
			DeliverablesStatus: report.Status,
		}, nil
	}
}

func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("id is required")
	}
	return id, nil
}
