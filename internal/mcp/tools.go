package mcp

import "github.com/mark3labs/mcp-go/mcp"

var revisionOpt = mcp.WithNumber("revision",
	mcp.Description("Revision id to view the save at. 0 or omitted means the latest revision."),
)

var statsToolDef = mcp.NewTool("save_stats",
	mcp.WithDescription("Summarize the open save: format, revision count, folder/file/blob counts overall and visible at a revision."),
	mcp.WithReadOnlyHintAnnotation(true),
	revisionOpt,
)

var listToolDef = mcp.NewTool("save_list",
	mcp.WithDescription("List the folders and files directly inside a folder of the save, folders first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("dir",
		mcp.Description("Folder path such as World/0. Empty lists the root."),
	),
	revisionOpt,
	mcp.WithNumber("limit", mcp.Description("Max entries to return (default 200, max 5000)")),
	mcp.WithNumber("offset", mcp.Description("Entries to skip (default 0)")),
)

var revisionsToolDef = mcp.NewTool("save_revisions",
	mcp.WithDescription("List every revision of the save, oldest first. .brz archives have a single revision."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var findToolDef = mcp.NewTool("save_find",
	mcp.WithDescription("Find files whose full path matches a glob pattern (path.Match syntax, * does not cross /)."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("pattern",
		mcp.Required(),
		mcp.Description("Glob over full paths, e.g. World/*/Chunks/*.mps"),
	),
	revisionOpt,
	mcp.WithNumber("limit", mcp.Description("Max entries to return (default 500, max 50000)")),
	mcp.WithNumber("offset", mcp.Description("Entries to skip (default 0)")),
)

var readToolDef = mcp.NewTool("mps_read",
	mcp.WithDescription("Decode a .mps file with its resolved schema and return the record as JSON."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Full path of the .mps file, e.g. World/0/Owners.mps"),
	),
	revisionOpt,
	mcp.WithBoolean("rotate",
		mcp.Description("Return one row per entity instead of parallel arrays"),
	),
)

var schemaToolDef = mcp.NewTool("schema_read",
	mcp.WithDescription("Parse a .schema file. Given a .mps path, returns the schema that file decodes with."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Full path of a .schema or .mps file"),
	),
	revisionOpt,
	mcp.WithBoolean("validate",
		mcp.Description("Also check every type reachable from the root struct"),
	),
)

var ownersToolDef = mcp.NewTool("owners_report",
	mcp.WithDescription("Owner leaderboard from World/0/Owners.mps as a table and Markdown, sorted by brick count."),
	mcp.WithReadOnlyHintAnnotation(true),
	revisionOpt,
	mcp.WithArray("columns",
		mcp.Description("Columns to include, e.g. [\"UserName\", \"BrickCount\"]. Default: all."),
		mcp.WithStringItems(),
	),
	mcp.WithString("sort_by",
		mcp.Description("Numeric column to sort by, descending (default BrickCount)"),
	),
	mcp.WithNumber("limit", mcp.Description("Max rows (default all)")),
	mcp.WithBoolean("html", mcp.Description("Also render the table as HTML")),
)

var exportToolDef = mcp.NewTool("save_export",
	mcp.WithDescription("Decode every matching .mps file and write one JSON line per file to a .jsonl export."),
	mcp.WithString("path",
		mcp.Description("Destination .jsonl file (default ~/.brsave/exports/<save>-<timestamp>.jsonl)"),
	),
	mcp.WithString("pattern",
		mcp.Description("Glob over .mps paths (default: all)"),
	),
	revisionOpt,
	mcp.WithBoolean("rotate",
		mcp.Description("Write rows instead of raw records"),
	),
)
