package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/config"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	save *archive.Save
	cfg  *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(s *archive.Save, cfg *config.Config) *Handlers {
	return &Handlers{save: s, cfg: cfg}
}

// Request types for each tool

// StatsRequest represents the arguments for save_stats.
type StatsRequest struct {
	Revision int64 `json:"revision,omitempty"`
}

// ListRequest represents the arguments for save_list.
type ListRequest struct {
	Dir      string `json:"dir,omitempty"`
	Revision int64  `json:"revision,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// FindRequest represents the arguments for save_find.
type FindRequest struct {
	Pattern  string `json:"pattern"`
	Revision int64  `json:"revision,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// ReadRequest represents the arguments for mps_read.
type ReadRequest struct {
	Path     string `json:"path"`
	Revision int64  `json:"revision,omitempty"`
	Rotate   bool   `json:"rotate,omitempty"`
}

// SchemaRequest represents the arguments for schema_read.
type SchemaRequest struct {
	Path     string `json:"path"`
	Revision int64  `json:"revision,omitempty"`
	Validate bool   `json:"validate,omitempty"`
}

// OwnersRequest represents the arguments for owners_report.
type OwnersRequest struct {
	Revision int64    `json:"revision,omitempty"`
	Columns  []string `json:"columns,omitempty"`
	SortBy   string   `json:"sort_by,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	HTML     bool     `json:"html,omitempty"`
}

// ExportRequest represents the arguments for save_export.
type ExportRequest struct {
	Path     string `json:"path,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	Revision int64  `json:"revision,omitempty"`
	Rotate   bool   `json:"rotate,omitempty"`
}

// Handler implementations

// HandleStats handles the save_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Stats(ctx, h.save, ops.StatsInput{Revision: input.Revision})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the save_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(ctx, h.save, ops.ListInput{
		Dir:      input.Dir,
		Revision: input.Revision,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRevisions handles the save_revisions tool call.
func (h *Handlers) HandleRevisions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Revisions(ctx, h.save)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFind handles the save_find tool call.
func (h *Handlers) HandleFind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FindRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Find(ctx, h.save, ops.FindInput{
		Pattern:  input.Pattern,
		Revision: input.Revision,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRead handles the mps_read tool call.
func (h *Handlers) HandleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReadRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Read(ctx, h.save, ops.ReadInput{
		Path:     input.Path,
		Revision: input.Revision,
		Rotate:   input.Rotate,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSchema handles the schema_read tool call.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SchemaRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Schema(ctx, h.save, ops.SchemaInput{
		Path:     input.Path,
		Revision: input.Revision,
		Validate: input.Validate,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleOwners handles the owners_report tool call.
func (h *Handlers) HandleOwners(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OwnersRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Owners(ctx, h.save, ops.OwnersInput{
		Revision: input.Revision,
		Columns:  input.Columns,
		SortBy:   input.SortBy,
		Limit:    input.Limit,
		HTML:     input.HTML,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the save_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Export(ctx, h.save, ops.ExportInput{
		Path:     input.Path,
		Pattern:  input.Pattern,
		Revision: input.Revision,
		Rotate:   input.Rotate,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := errors.As(err); ok {
		msg := sErr.Message
		if err != error(sErr) {
			// keep the caller's wrapping context
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": msg,
		}
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
