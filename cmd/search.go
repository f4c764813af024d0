package main

import (
	"context"
	"strings"

	"github.com/urfave/cli/v3"
)

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search songs across every enabled service",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "query",
			},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Result page offset",
			},
			&cli.BoolFlag{
				Name:  "hints",
				Usage: "Show search suggestions instead of results",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Search,
	}
}

// Search fans a query out across the enabled services.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return cli.Exit("usage: search <query>", 1)
	}

	engine, err := r.ensureEngine(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("hints") {
		hints, err := engine.registry.SearchHints(ctx, query)
		if err != nil {
			r.logger.Warn("some services failed to produce hints", "err", err)
		}
		if cmd.Bool("json") {
			return r.writeJSON(hints, cmd.Bool("pretty"))
		}
		for _, hint := range hints {
			r.writePlain("%s\n", hint)
		}
		return nil
	}

	results, err := engine.registry.SearchSongs(ctx, query, int(cmd.Int("offset")))
	if err != nil {
		r.logger.Warn("some services failed to search", "err", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(results, cmd.Bool("pretty"))
	}

	if len(results) == 0 {
		r.writePlain("No results for %q.\n", query)
		return nil
	}

	for i, result := range results {
		line := result.Title
		if len(result.Artists) > 0 {
			line += " - " + strings.Join(result.Artists, ", ")
		}
		if result.Album != "" {
			line += " (" + result.Album + ")"
		}
		r.writePlain("%3d. [%s] %s\n", i+1, result.Type, line)
	}
	return nil
}
