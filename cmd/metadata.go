package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/UniMusic-app/unimusic/internal/metadata"
	"github.com/urfave/cli/v3"
)

func metadataCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "metadata",
		Usage: "Look up song metadata through the configured providers",
		Commands: []*cli.Command{
			{
				Name:  "lookup",
				Usage: "Look up metadata for a local audio file",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "file",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.MetadataLookup,
			},
			{
				Name:   "providers",
				Usage:  "List metadata providers",
				Action: r.MetadataProviders,
			},
			{
				Name:  "enable",
				Usage: "Enable a metadata provider",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "name",
					},
				},
				Action: r.MetadataEnable,
			},
			{
				Name:  "disable",
				Usage: "Disable a metadata provider",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "name",
					},
				},
				Action: r.MetadataDisable,
			},
		},
	}
}

// MetadataLookup resolves metadata for a file through the provider chain.
func (r *Runner) MetadataLookup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return cli.Exit("usage: metadata lookup <file>", 1)
	}

	engine, err := r.ensureEngine(ctx)
	if err != nil {
		return err
	}

	lookup := metadata.Lookup{
		ID:       path,
		FilePath: path,
		FileName: filepath.Base(path),
	}

	meta, err := engine.metadata.GetMetadata(ctx, lookup)
	if err != nil {
		return err
	}
	if meta == nil {
		r.writePlain("No metadata found for %s.\n", path)
		return nil
	}

	if cmd.Bool("json") {
		return r.writeJSON(meta, cmd.Bool("pretty"))
	}

	r.writePlain("Title: %s\n", meta.Title)
	if meta.Album != "" {
		r.writePlain("Album: %s\n", meta.Album)
	}
	var names []string
	for _, artist := range meta.Artists {
		if artist.Title != "" {
			names = append(names, artist.Title)
		}
	}
	if len(names) > 0 {
		r.writePlain("Artists: %s\n", strings.Join(names, ", "))
	}
	if len(meta.Genres) > 0 {
		r.writePlain("Genres: %s\n", strings.Join(meta.Genres, ", "))
	}
	if meta.Duration > 0 {
		r.writePlain("Duration: %s\n", formatDuration(meta.Duration))
	}
	if len(meta.ISRC) > 0 {
		r.writePlain("ISRC: %s\n", strings.Join(meta.ISRC, ", "))
	}
	return nil
}

// MetadataProviders lists the registered providers.
func (r *Runner) MetadataProviders(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.ensureEngine(ctx)
	if err != nil {
		return err
	}

	enabled := make(map[string]bool)
	for _, provider := range engine.metadata.Enabled() {
		enabled[provider.Name()] = true
	}

	for _, provider := range engine.metadata.Providers() {
		status := "disabled"
		switch {
		case !provider.Available():
			status = "unavailable"
		case enabled[provider.Name()]:
			status = "enabled"
		}
		r.writePlain("%-14s %-12s %s\n", provider.Name(), status, provider.Description())
	}
	return nil
}

// MetadataEnable switches a provider on.
func (r *Runner) MetadataEnable(ctx context.Context, cmd *cli.Command) error {
	return r.setMetadataEnabled(ctx, cmd, true)
}

// MetadataDisable switches a provider off.
func (r *Runner) MetadataDisable(ctx context.Context, cmd *cli.Command) error {
	return r.setMetadataEnabled(ctx, cmd, false)
}

func (r *Runner) setMetadataEnabled(ctx context.Context, cmd *cli.Command, enabled bool) error {
	name := cmd.StringArg("name")
	if name == "" {
		return cli.Exit("usage: metadata enable|disable <name>", 1)
	}

	engine, err := r.ensureEngine(ctx)
	if err != nil {
		return err
	}
	return engine.metadata.SetEnabled(name, enabled)
}
