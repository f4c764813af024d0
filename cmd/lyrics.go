package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func lyricsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "lyrics",
		Usage: "Fetch lyrics for the first search hit",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "query",
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "synced",
				Usage: "Show timestamps when synced lyrics exist",
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
		Action: r.Lyrics,
	}
}

// Lyrics searches for a song and fetches its lyrics.
func (r *Runner) Lyrics(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return cli.Exit("usage: lyrics <query>", 1)
	}

	engine, err := r.ensureEngine(ctx)
	if err != nil {
		return err
	}

	results, err := engine.registry.SearchSongs(ctx, query, 0)
	if err != nil && len(results) == 0 {
		return err
	}
	if len(results) == 0 {
		r.writePlain("No results for %q.\n", query)
		return nil
	}

	song, err := engine.registry.GetSongFromSearchResult(ctx, results[0])
	if err != nil {
		return err
	}

	found, err := engine.lyrics.GetLyrics(ctx, song)
	if err != nil {
		return err
	}
	if found == nil {
		r.writePlain("No lyrics found for %q.\n", song.Title)
		return nil
	}

	if cmd.Bool("json") {
		return r.writeJSON(found, cmd.Bool("pretty"))
	}

	r.writePlain("%s (via %s)\n\n", song.Title, found.Provider.Title)

	if cmd.Bool("synced") && len(found.SyncedLyrics) > 0 {
		for _, line := range found.SyncedLyrics {
			r.writePlain("[%s] %s\n", formatTimestamp(line.Timestamp), line.Line)
		}
		return nil
	}

	for _, line := range found.Lyrics {
		r.writePlain("%s\n", line)
	}
	return nil
}

// formatTimestamp renders seconds as mm:ss.cc, the way LRC files do.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	centis := int((seconds - float64(total)) * 100)
	return fmt.Sprintf("%02d:%02d.%02d", total/60, total%60, centis)
}
