package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/config"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/logging"
	"github.com/hpungsan/brsave/internal/mcp"
	"github.com/hpungsan/brsave/internal/ops"
	"github.com/hpungsan/brsave/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config) *cli.App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	app := &cli.App{
		Name:      "brsave",
		Usage:     "Read-only inspector for Brickadia saves (.brdb, .brz)",
		UsageText: "brsave [global options] <command> [options] <save> [arguments...]",
		Version:   Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "trace|debug|info|warn|error (default: config log_level)"},
		},
		Before: func(c *cli.Context) error {
			level := cfg.LogLevel
			if c.IsSet("log-level") {
				level = c.String("log-level")
			}
			logging.Init(level, os.Stderr)
			return nil
		},
		Commands: []*cli.Command{
			statsCmd(cfg),
			lsCmd(cfg),
			findCmd(cfg),
			readCmd(cfg),
			schemaCmd(cfg),
			revisionsCmd(cfg),
			ownersCmd(cfg),
			dumpCmd(cfg),
			exportCmd(cfg),
			serveCmd(cfg),
			mcpCmd(cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// revisionFlag is shared by every command that reads the tree.
func revisionFlag() cli.Flag {
	return &cli.Int64Flag{Name: "revision", Aliases: []string{"r"}, Usage: "Revision to view (0 = latest)"}
}

// withSave opens the save named by the first argument, runs fn and closes it.
func withSave(cfg *config.Config, fn func(c *cli.Context, s *archive.Save) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() == 0 {
			return outputError(errors.NewInvalidRequest("save path is required"))
		}
		s, err := ops.OpenSave(c.Context, c.Args().First(), cfg)
		if err != nil {
			return outputError(err)
		}
		defer func() {
			if err := s.Close(); err != nil {
				logger := logging.Component("cli")
				logger.Warn().Err(err).Msg("close save")
			}
		}()
		return fn(c, s)
	}
}

// statsCmd creates the stats command.
func statsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Summarize a save: format, revisions, folder and file counts",
		ArgsUsage: "<save>",
		Flags:     []cli.Flag{revisionFlag()},
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			output, err := ops.Stats(c.Context, s, ops.StatsInput{Revision: c.Int64("revision")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}),
	}
}

// lsCmd creates the ls command.
func lsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List a folder, folders first",
		ArgsUsage: "<save> [dir]",
		Flags: []cli.Flag{
			revisionFlag(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			output, err := ops.List(c.Context, s, ops.ListInput{
				Dir:      c.Args().Get(1),
				Revision: c.Int64("revision"),
				Limit:    c.Int("limit"),
				Offset:   c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}),
	}
}

// findCmd creates the find command.
func findCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "find",
		Usage:     "Find files whose full path matches a glob pattern",
		ArgsUsage: "<save> <pattern>",
		Flags: []cli.Flag{
			revisionFlag(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultFindLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			output, err := ops.Find(c.Context, s, ops.FindInput{
				Pattern:  c.Args().Get(1),
				Revision: c.Int64("revision"),
				Limit:    c.Int("limit"),
				Offset:   c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}),
	}
}

// readCmd creates the read command.
func readCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "Decode a .mps file with its schema",
		ArgsUsage: "<save> <path>",
		Flags: []cli.Flag{
			revisionFlag(),
			&cli.BoolFlag{Name: "rotate", Usage: "Print one row per entity instead of the raw record"},
		},
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			output, err := ops.Read(c.Context, s, ops.ReadInput{
				Path:     c.Args().Get(1),
				Revision: c.Int64("revision"),
				Rotate:   c.Bool("rotate"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}),
	}
}

// schemaCmd creates the schema command.
func schemaCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "schema",
		Usage:     "Print a .schema file, or the schema a .mps file decodes with",
		ArgsUsage: "<save> <path>",
		Flags: []cli.Flag{
			revisionFlag(),
			&cli.BoolFlag{Name: "validate", Usage: "Check every type reachable from the root struct"},
		},
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			output, err := ops.Schema(c.Context, s, ops.SchemaInput{
				Path:     c.Args().Get(1),
				Revision: c.Int64("revision"),
				Validate: c.Bool("validate"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}),
	}
}

// revisionsCmd creates the revisions command.
func revisionsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "revisions",
		Usage:     "List the save's revisions",
		ArgsUsage: "<save>",
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			output, err := ops.Revisions(c.Context, s)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}),
	}
}

// ownersCmd creates the owners command.
func ownersCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "owners",
		Usage:     "Print the owner table from World/0/Owners.mps as Markdown",
		ArgsUsage: "<save>",
		Flags: []cli.Flag{
			revisionFlag(),
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "Numeric column to sort by, descending (default: BrickCount)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum rows (0 = all)"},
			&cli.StringFlag{Name: "columns", Aliases: []string{"c"}, Usage: "Comma-separated columns to show"},
			&cli.BoolFlag{Name: "json", Usage: "Print the full result as JSON"},
			&cli.BoolFlag{Name: "html", Usage: "Print the table as HTML"},
		},
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			output, err := ops.Owners(c.Context, s, ops.OwnersInput{
				Revision: c.Int64("revision"),
				Columns:  splitList(c.String("columns")),
				SortBy:   c.String("sort"),
				Limit:    c.Int("limit"),
				HTML:     c.Bool("html"),
			})
			if err != nil {
				return outputError(err)
			}
			switch {
			case c.Bool("json"):
				return outputJSON(output)
			case c.Bool("html"):
				_, err = fmt.Fprint(os.Stdout, output.HTML)
			default:
				_, err = fmt.Fprint(os.Stdout, output.Markdown)
			}
			return err
		}),
	}
}

// dumpCmd creates the dump command.
func dumpCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Write the tree at a revision to a local directory",
		ArgsUsage: "<save>",
		Flags: []cli.Flag{
			revisionFlag(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Target directory (default: <dump_dir>/<save name>)"},
		},
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			output, err := ops.Dump(c.Context, s, cfg, ops.DumpInput{
				Out:      c.String("out"),
				Revision: c.Int64("revision"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}),
	}
}

// exportCmd creates the export command.
func exportCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Decode .mps files to a JSONL file",
		ArgsUsage: "<save>",
		Flags: []cli.Flag{
			revisionFlag(),
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.brsave/exports/<save>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "pattern", Usage: "Glob over .mps paths (default: all)"},
			&cli.BoolFlag{Name: "rotate", Usage: "Write rows instead of raw records"},
		},
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			output, err := ops.Export(c.Context, s, ops.ExportInput{
				Path:     c.String("path"),
				Pattern:  c.String("pattern"),
				Revision: c.Int64("revision"),
				Rotate:   c.Bool("rotate"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}),
	}
}

// serveCmd creates the serve command.
func serveCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "Browse a save in the web UI",
		ArgsUsage: "<save>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8765, Usage: "Port to listen on"},
		},
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			srv, err := web.NewServer(s, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv)
		}),
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "mcp",
		Usage:     "Serve the save's read tools over MCP (stdio)",
		ArgsUsage: "<save>",
		Action: withSave(cfg, func(c *cli.Context, s *archive.Save) error {
			return mcp.Run(s, cfg, Version)
		}),
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// splitList splits a comma-separated string, dropping empty items.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
