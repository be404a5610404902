package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/compress"
	"github.com/hpungsan/brsave/internal/config"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/vfs"
)

type memSource map[int64][]byte

func (m memSource) Blobs(_ context.Context, ids []int64) ([]vfs.RawBlob, error) {
	var out []vfs.RawBlob
	for _, id := range ids {
		if data, ok := m[id]; ok {
			out = append(out, vfs.RawBlob{
				ID:               id,
				Compression:      compress.None,
				SizeUncompressed: int64(len(data)),
				SizeCompressed:   int64(len(data)),
				Content:          data,
			})
		}
	}
	return out, nil
}

// ownersSchema encodes [{}, {Owners: {UserNames: ["str"], BrickCounts: ["u32", 0]}}].
func ownersSchema(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for _, err := range []error{
		enc.EncodeArrayLen(2),
		enc.EncodeMapLen(0),
		enc.EncodeMapLen(1),
		enc.EncodeString("Owners"),
		enc.EncodeMapLen(2),
		enc.EncodeString("UserNames"),
		enc.Encode([]any{"str"}),
		enc.EncodeString("BrickCounts"),
		enc.Encode([]any{"u32", 0}),
	} {
		if err != nil {
			t.Fatalf("encode schema: %v", err)
		}
	}
	return buf.Bytes()
}

// testSetup builds a save holding World/0/Owners.mps (ann=10, bob=3)
// and a truncated World/0/Broken.mps sharing its schema.
func testSetup(t *testing.T) (*archive.Save, *config.Config) {
	t.Helper()

	src := memSource{
		1: ownersSchema(t),
		2: {
			0x92, 0xa3, 'a', 'n', 'n', 0xa3, 'b', 'o', 'b',
			0xc4, 0x08, 0x0a, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
		},
		3: {0x92, 0xa3, 'a'},
	}
	fs := vfs.New(src, vfs.WithLogger(zerolog.Nop()))
	fs.IngestFolder(vfs.Folder{ID: 1, Name: "World"})
	fs.IngestFolder(vfs.Folder{ID: 2, ParentID: 1, Name: "0"})
	fs.IngestFile(vfs.File{ID: 1, ParentID: 2, ContentID: 1, Name: "Owners.schema"})
	fs.IngestFile(vfs.File{ID: 2, ParentID: 2, ContentID: 2, Name: "Owners.mps"})
	fs.IngestFile(vfs.File{ID: 3, ParentID: 2, ContentID: 1, Name: "Broken.schema"})
	fs.IngestFile(vfs.File{ID: 4, ParentID: 2, ContentID: 3, Name: "Broken.mps"})
	fs.IngestRevision(vfs.Revision{ID: 1, CreatedAt: 0, Description: "Initial Revision"})

	s := &archive.Save{Name: "Parkour", Format: archive.FormatBrdb, Path: "Parkour.brdb", FS: fs}
	return s, config.DefaultConfig()
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleStats(t *testing.T) {
	s, cfg := testSetup(t)
	h := NewHandlers(s, cfg)

	result, err := h.HandleStats(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["name"] != "Parkour" || output["format"] != "brdb" {
		t.Errorf("name/format = %v/%v", output["name"], output["format"])
	}
	if output["mps_files"] != float64(2) {
		t.Errorf("mps_files = %v, want 2", output["mps_files"])
	}
}

func TestHandleList(t *testing.T) {
	s, cfg := testSetup(t)
	h := NewHandlers(s, cfg)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantItems int
		errorCode string
	}{
		{
			name:      "root",
			args:      map[string]any{},
			wantItems: 1,
		},
		{
			name:      "folder",
			args:      map[string]any{"dir": "World/0"},
			wantItems: 4,
		},
		{
			name:      "limited",
			args:      map[string]any{"dir": "World/0", "limit": 3},
			wantItems: 3,
		},
		{
			name:      "unknown folder",
			args:      map[string]any{"dir": "World/7"},
			errorCode: "FILE_NOT_FOUND",
		},
		{
			name:      "wrong argument type",
			args:      map[string]any{"dir": 5},
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleList(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.errorCode != "" {
				if !result.IsError {
					t.Fatalf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			output := parseOutput(t, result)
			items, _ := output["items"].([]any)
			if len(items) != tt.wantItems {
				t.Errorf("len(items) = %d, want %d", len(items), tt.wantItems)
			}
		})
	}
}

func TestHandleRevisions(t *testing.T) {
	s, cfg := testSetup(t)
	h := NewHandlers(s, cfg)

	result, err := h.HandleRevisions(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	items, _ := output["items"].([]any)
	if len(items) != 1 || output["latest"] != float64(1) {
		t.Errorf("items = %v, latest = %v", items, output["latest"])
	}
}

func TestHandleFind(t *testing.T) {
	s, cfg := testSetup(t)
	h := NewHandlers(s, cfg)
	ctx := context.Background()

	result, err := h.HandleFind(ctx, makeRequest(map[string]any{"pattern": "World/*/*.mps"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	items, _ := output["items"].([]any)
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}

	result, err = h.HandleFind(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleRead(t *testing.T) {
	s, cfg := testSetup(t)
	h := NewHandlers(s, cfg)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		errorCode string
	}{
		{"record", map[string]any{"path": "World/0/Owners.mps"}, ""},
		{"rows", map[string]any{"path": "World/0/Owners.mps", "rotate": true}, ""},
		{"missing path", map[string]any{}, "INVALID_REQUEST"},
		{"absent file", map[string]any{"path": "World/0/Nope.mps"}, "NO_MPS_AT_PATH"},
		{"truncated data", map[string]any{"path": "World/0/Broken.mps"}, "INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleRead(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.errorCode != "" {
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			output := parseOutput(t, result)
			if output["schema"] != "World/0/Owners.schema" {
				t.Errorf("schema = %v", output["schema"])
			}
		})
	}
}

func TestHandleRead_RecordShape(t *testing.T) {
	s, cfg := testSetup(t)
	h := NewHandlers(s, cfg)

	result, err := h.HandleRead(context.Background(), makeRequest(map[string]any{"path": "World/0/Owners.mps"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	text := result.Content[0].(mcp.TextContent).Text
	// field order follows the schema
	if strings.Index(text, "UserNames") > strings.Index(text, "BrickCounts") {
		t.Errorf("fields out of schema order: %s", text)
	}
	output := parseOutput(t, result)
	record, _ := output["record"].(map[string]any)
	counts, _ := record["BrickCounts"].([]any)
	if len(counts) != 2 || counts[0] != float64(10) {
		t.Errorf("BrickCounts = %v", record["BrickCounts"])
	}
}

func TestHandleSchema(t *testing.T) {
	s, cfg := testSetup(t)
	h := NewHandlers(s, cfg)
	ctx := context.Background()

	result, err := h.HandleSchema(ctx, makeRequest(map[string]any{"path": "World/0/Owners.mps", "validate": true}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["path"] != "World/0/Owners.schema" || output["for"] != "World/0/Owners.mps" {
		t.Errorf("path/for = %v/%v", output["path"], output["for"])
	}

	result, err = h.HandleSchema(ctx, makeRequest(map[string]any{"path": "World/0/Nope.schema"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "FILE_NOT_FOUND")
}

func TestHandleOwners(t *testing.T) {
	s, cfg := testSetup(t)
	h := NewHandlers(s, cfg)
	ctx := context.Background()

	result, err := h.HandleOwners(ctx, makeRequest(map[string]any{"limit": 1, "html": true}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	md, _ := output["markdown"].(string)
	if !strings.Contains(md, "| 1 | ann | 10 |") {
		t.Errorf("markdown = %q", md)
	}
	if html, _ := output["html"].(string); !strings.Contains(html, "<table>") {
		t.Errorf("html = %q", html)
	}

	result, err = h.HandleOwners(ctx, makeRequest(map[string]any{"columns": []any{"Nope"}}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleExport(t *testing.T) {
	s, cfg := testSetup(t)
	h := NewHandlers(s, cfg)
	path := filepath.Join(t.TempDir(), "parkour.jsonl")

	result, err := h.HandleExport(context.Background(), makeRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["count"] != float64(1) || output["failed"] != float64(1) {
		t.Errorf("count/failed = %v/%v, want 1/1", output["count"], output["failed"])
	}

	result, err = h.HandleExport(context.Background(), makeRequest(map[string]any{"path": "out.txt"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestServerRegistration(t *testing.T) {
	s, cfg := testSetup(t)

	srv := NewServer(s, cfg, "test")
	tools := srv.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"save_stats",
		"save_list",
		"save_revisions",
		"save_find",
		"save_export",
		"mps_read",
		"schema_read",
		"owners_report",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	s, cfg := testSetup(t)

	cfg.DisabledTools = []string{"save_export", "owners_report", "save_export", "not_a_tool"}
	tools := NewServer(s, cfg, "test").ListTools()

	if len(tools) != 6 {
		t.Errorf("registered tool count = %d, want 6", len(tools))
	}
	for _, name := range []string{"save_export", "owners_report"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_WarnsOnUnknownDisabledTools(t *testing.T) {
	var logs bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&logs)
	t.Cleanup(func() { log.Logger = prev })

	s, cfg := testSetup(t)
	cfg.DisabledTools = []string{"save_export", "not_a_tool"}
	NewServer(s, cfg, "test")

	out := logs.String()
	for _, want := range []string{`"level":"warn"`, `"component":"mcp"`, "unknown tools in disabled_tools", `"tools":["not_a_tool"]`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s: %s", want, out)
		}
	}

	logs.Reset()
	cfg.DisabledTools = []string{"save_export"}
	NewServer(s, cfg, "test")
	if logs.Len() != 0 {
		t.Errorf("unexpected log output for valid disabled tools: %s", logs.String())
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	s, cfg := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	tools := NewServer(s, cfg, "test").ListTools()

	if len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"save_export", "mps_read"}, 0},
		{"one unknown", []string{"save_export", "bricks_write"}, 1},
		{"all unknown", []string{"foo", "bar", "baz"}, 3},
		{"empty list", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 8 {
		t.Errorf("AllToolNames() returned %d names, want 8", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("names not sorted: %v", names)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.brdb: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("chunk 3: %w", errors.NewNoMpsAtPath("World/0/Owners.mps"))

	errObj := errorObject(t, errorResult(wrappedErr))
	if errObj["code"] != string(errors.ErrNoMpsAtPath) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNoMpsAtPath)
	}
	if msg, _ := errObj["message"].(string); !strings.Contains(msg, "chunk 3") {
		t.Errorf("message should contain wrapper context, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewFileNotFound("World/0/Nope.schema")))
	if errObj["code"] != string(errors.ErrFileNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrFileNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(context.Canceled))
	if errObj["code"] != string(errors.ErrInternal) {
		t.Errorf("code=%v, want INTERNAL", errObj["code"])
	}
	if errObj["message"] != "an internal error occurred" {
		t.Errorf("message=%v", errObj["message"])
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in payload: %v", payload)
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if !result.IsError {
		t.Errorf("expected error result, got success")
		return
	}
	if code, _ := errorObject(t, result)["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
