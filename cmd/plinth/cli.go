package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rmarchant/plinth/internal/cache"
	"github.com/rmarchant/plinth/internal/config"
	"github.com/rmarchant/plinth/internal/content"
	"github.com/rmarchant/plinth/internal/db"
	"github.com/rmarchant/plinth/internal/errors"
	"github.com/rmarchant/plinth/internal/knowledge"
	"github.com/rmarchant/plinth/internal/markdown"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(store *db.Store, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "plinth",
		Usage:   "Project knowledge base with cache-aware context assembly",
		Version: Version,
		Commands: []*cli.Command{
			contextCmd(store),
			decisionCmd(store),
			progressCmd(store),
			patternCmd(store),
			customCmd(store),
			activityCmd(store),
			classifyCmd(store),
			buildCmd(store),
			checkCmd(store),
			dynamicCmd(store, cfg),
			sessionCmd(store),
			exportCmd(store),
			importCmd(store),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func workspaceFlag() cli.Flag {
	return &cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Value: "default", Usage: "Workspace name"}
}

// contextCmd groups the product/active context commands.
func contextCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:  "context",
		Usage: "Read or update the product/active context",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print a context as JSON",
				ArgsUsage: "<product|active>",
				Flags:     []cli.Flag{workspaceFlag()},
				Action: func(c *cli.Context) error {
					contextType := c.Args().First()
					var value content.Value
					var err error
					switch contextType {
					case "product":
						value, err = store.ProjectContext(c.String("workspace"))
					case "active":
						value, err = store.ActiveContext(c.String("workspace"))
					default:
						return outputError(errors.NewInvalidRequest("context type must be \"product\" or \"active\""))
					}
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"context_type": contextType, "content": value})
				},
			},
			{
				Name:      "update",
				Usage:     "Overwrite or patch a context (JSON via --content/--patch or stdin)",
				ArgsUsage: "<product|active>",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.StringFlag{Name: "content", Usage: "Full replacement content as JSON (\"-\" reads stdin)"},
					&cli.StringFlag{Name: "patch", Usage: "Partial update as JSON; null values remove keys"},
					&cli.StringFlag{Name: "source", Usage: "Free-form change source note"},
				},
				Action: func(c *cli.Context) error {
					contextType := c.Args().First()
					if contextType != "product" && contextType != "active" {
						return outputError(errors.NewInvalidRequest("context type must be \"product\" or \"active\""))
					}

					update := db.ContextUpdate{ChangeSource: c.String("source")}
					if raw := c.String("content"); raw != "" {
						value, err := readJSONArg(raw)
						if err != nil {
							return outputError(err)
						}
						update.Content = &value
					}
					if raw := c.String("patch"); raw != "" {
						value, err := readJSONArg(raw)
						if err != nil {
							return outputError(err)
						}
						update.Patch = &value
					}

					var err error
					if contextType == "product" {
						err = store.UpdateProjectContext(c.String("workspace"), update)
					} else {
						err = store.UpdateActiveContext(c.String("workspace"), update)
					}
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"updated": true, "context_type": contextType})
				},
			},
		},
	}
}

// decisionCmd groups the decision commands.
func decisionCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:  "decision",
		Usage: "Log, list, or delete decisions",
		Subcommands: []*cli.Command{
			{
				Name:      "log",
				Usage:     "Log a decision",
				ArgsUsage: "<summary>",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.StringFlag{Name: "rationale", Aliases: []string{"r"}, Usage: "Why this decision was made"},
					&cli.StringFlag{Name: "details", Usage: "Implementation details"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
				},
				Action: func(c *cli.Context) error {
					id, err := store.LogDecision(c.String("workspace"), knowledge.Decision{
						Summary:               strings.Join(c.Args().Slice(), " "),
						Rationale:             c.String("rationale"),
						ImplementationDetails: c.String("details"),
						Tags:                  parseTags(c.String("tags")),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"id": id})
				},
			},
			{
				Name:  "list",
				Usage: "List decisions, most recent first",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum decisions to return (0 = all)"},
				},
				Action: func(c *cli.Context) error {
					decisions, err := store.Decisions(c.String("workspace"), c.Int("limit"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"decisions": decisions, "count": len(decisions)})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a decision by ID",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{workspaceFlag()},
				Action: func(c *cli.Context) error {
					id, err := parseID(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					if err := store.DeleteDecision(c.String("workspace"), id); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"deleted": true, "id": id})
				},
			},
		},
	}
}

// progressCmd groups the progress commands.
func progressCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:  "progress",
		Usage: "Log or list task progress",
		Subcommands: []*cli.Command{
			{
				Name:      "log",
				Usage:     "Log a progress entry",
				ArgsUsage: "<description>",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Value: knowledge.StatusTodo, Usage: "TODO, IN_PROGRESS, or DONE"},
					&cli.Int64Flag{Name: "parent", Usage: "Parent task ID"},
				},
				Action: func(c *cli.Context) error {
					entry := knowledge.ProgressEntry{
						Status:      c.String("status"),
						Description: strings.Join(c.Args().Slice(), " "),
					}
					if c.IsSet("parent") {
						parent := c.Int64("parent")
						entry.ParentID = &parent
					}
					id, err := store.LogProgress(c.String("workspace"), entry)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"id": id})
				},
			},
			{
				Name:  "list",
				Usage: "List progress entries, most recent first",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum entries to return (0 = all)"},
				},
				Action: func(c *cli.Context) error {
					entries, err := store.Progress(c.String("workspace"), c.String("status"), c.Int("limit"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"entries": entries, "count": len(entries)})
				},
			},
		},
	}
}

// patternCmd groups the system-pattern commands.
func patternCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:  "pattern",
		Usage: "Log or list system patterns",
		Subcommands: []*cli.Command{
			{
				Name:      "log",
				Usage:     "Log a system pattern",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Pattern description"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
				},
				Action: func(c *cli.Context) error {
					id, err := store.LogPattern(c.String("workspace"), knowledge.Pattern{
						Name:        c.Args().First(),
						Description: c.String("description"),
						Tags:        parseTags(c.String("tags")),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"id": id})
				},
			},
			{
				Name:  "list",
				Usage: "List system patterns, most recently modified first",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum patterns to return (0 = all)"},
				},
				Action: func(c *cli.Context) error {
					patterns, err := store.SystemPatterns(c.String("workspace"), c.Int("limit"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"patterns": patterns, "count": len(patterns)})
				},
			},
		},
	}
}

// customCmd groups the custom-data commands.
func customCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:  "custom",
		Usage: "Store or list custom knowledge entries",
		Subcommands: []*cli.Command{
			{
				Name:      "log",
				Usage:     "Store a custom entry (value as JSON argument or stdin)",
				ArgsUsage: "<category> <key> [value-json]",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.BoolFlag{Name: "cache-hint", Usage: "Pin this entry into the stable context prefix"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("category and key are required"))
					}
					category, key := c.Args().Get(0), c.Args().Get(1)

					raw := c.Args().Get(2)
					if raw == "" {
						raw = "-"
					}
					value, err := readJSONArg(raw)
					if err != nil {
						return outputError(err)
					}

					score := cache.Score(value, category, key)
					id, err := store.LogCustomData(c.String("workspace"), knowledge.CustomEntry{
						Category:   category,
						Key:        key,
						Value:      value,
						CacheHint:  c.Bool("cache-hint"),
						CacheScore: score,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{
						"id":          id,
						"cache_score": score,
						"cache_hint":  c.Bool("cache-hint"),
					})
				},
			},
			{
				Name:  "list",
				Usage: "List custom entries",
				Flags: []cli.Flag{
					workspaceFlag(),
					&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category"},
				},
				Action: func(c *cli.Context) error {
					entries, err := store.CustomData(c.String("workspace"), c.String("category"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"entries": entries, "count": len(entries)})
				},
			},
		},
	}
}

// activityCmd creates the activity command.
func activityCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:  "activity",
		Usage: "Summarize recent knowledge activity",
		Flags: []cli.Flag{
			workspaceFlag(),
			&cli.IntFlag{Name: "hours", Value: 24, Usage: "Look-back window in hours"},
			&cli.IntFlag{Name: "limit-per-type", Value: 5, Usage: "Maximum items per type"},
		},
		Action: func(c *cli.Context) error {
			since := time.Now().Add(-time.Duration(c.Int("hours")) * time.Hour).Unix()
			activity, err := store.RecentActivity(c.String("workspace"), since, c.Int("limit-per-type"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(activity)
		},
	}
}

// classifyCmd creates the classify command.
func classifyCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:  "classify",
		Usage: "Classify workspace knowledge into cache-priority tiers",
		Flags: []cli.Flag{workspaceFlag()},
		Action: func(c *cli.Context) error {
			entries := cache.Classify(store, c.String("workspace"))
			return outputJSON(map[string]any{"entries": entries, "count": len(entries)})
		},
	}
}

// buildCmd creates the build command.
func buildCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build the fingerprinted stable context prefix",
		Flags: []cli.Flag{
			workspaceFlag(),
			&cli.StringFlag{Name: "format", Value: cache.FormatOllamaOptimized, Usage: "Assembly format"},
		},
		Action: func(c *cli.Context) error {
			return outputJSON(cache.BuildStablePrefix(store, c.String("workspace"), c.String("format")))
		},
	}
}

// checkCmd creates the check command.
func checkCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Check whether a stable-prefix fingerprint is still valid",
		ArgsUsage: "<fingerprint>",
		Flags:     []cli.Flag{workspaceFlag()},
		Action: func(c *cli.Context) error {
			return outputJSON(cache.CheckValidity(store, c.String("workspace"), c.Args().First()))
		},
	}
}

// dynamicCmd creates the dynamic command.
func dynamicCmd(store *db.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "dynamic",
		Usage:     "Assemble budget-bounded dynamic context for a query",
		ArgsUsage: "<query intent>",
		Flags: []cli.Flag{
			workspaceFlag(),
			&cli.IntFlag{Name: "budget", Aliases: []string{"b"}, Usage: "Token budget (default from config)"},
		},
		Action: func(c *cli.Context) error {
			budget := c.Int("budget")
			if budget == 0 {
				budget = cfg.DefaultDynamicBudget
			}
			bundle, err := cache.AssembleDynamic(store, c.String("workspace"),
				strings.Join(c.Args().Slice(), " "), budget)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(bundle)
		},
	}
}

// sessionCmd creates the session command.
func sessionCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Initialize an assistant session (stable prefix + recent activity)",
		Flags: []cli.Flag{workspaceFlag()},
		Action: func(c *cli.Context) error {
			return outputJSON(cache.InitializeSession(store, c.String("workspace")))
		},
	}
}

// exportCmd creates the export command.
func exportCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export the knowledge base as markdown files",
		ArgsUsage: "[directory]",
		Flags:     []cli.Flag{workspaceFlag()},
		Action: func(c *cli.Context) error {
			result, err := markdown.Export(store, c.String("workspace"), c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// importCmd creates the import command.
func importCmd(store *db.Store) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a markdown knowledge-base export",
		ArgsUsage: "<directory>",
		Flags:     []cli.Flag{workspaceFlag()},
		Action: func(c *cli.Context) error {
			result, err := markdown.Import(store, c.String("workspace"), c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
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
	if perr, ok := err.(*errors.PlinthError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", perr.Code, perr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readJSONArg parses a JSON value from an argument, reading stdin when the
// argument is "-".
func readJSONArg(raw string) (content.Value, error) {
	if raw == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return content.Null(), errors.NewInternal(err)
		}
		raw = strings.TrimSpace(string(data))
	}
	value, err := content.FromJSON([]byte(raw))
	if err != nil {
		return content.Null(), errors.NewInvalidRequest(fmt.Sprintf("invalid JSON: %v", err))
	}
	return value, nil
}

// parseID parses a positional numeric ID.
func parseID(s string) (int64, error) {
	if s == "" {
		return 0, errors.NewInvalidRequest("id is required")
	}
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid id %q", s))
	}
	return id, nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
