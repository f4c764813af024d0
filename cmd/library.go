package main

import (
	"context"
	"strings"

	"github.com/urfave/cli/v3"
)

func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "library",
		Usage: "List library songs from every enabled service",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Library page offset",
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Rescan libraries before listing",
			},
			&cli.BoolFlag{
				Name:  "albums",
				Usage: "List albums instead of songs",
			},
			&cli.BoolFlag{
				Name:  "artists",
				Usage: "List artists instead of songs",
			},
			&cli.BoolFlag{
				Name:  "playlists",
				Usage: "List playlists instead of songs",
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
		Action: r.Library,
	}
}

// Library lists the combined libraries of the enabled services.
func (r *Runner) Library(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.ensureEngine(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("refresh") {
		if err := engine.registry.RefreshLibrarySongs(ctx); err != nil {
			r.logger.Warn("some services failed to refresh", "err", err)
		}
	}

	switch {
	case cmd.Bool("albums"):
		return r.libraryAlbums(ctx, engine, cmd)
	case cmd.Bool("artists"):
		return r.libraryArtists(ctx, engine, cmd)
	case cmd.Bool("playlists"):
		return r.libraryPlaylists(ctx, engine, cmd)
	}

	songs, err := engine.registry.LibrarySongs(ctx, int(cmd.Int("offset")))
	if err != nil {
		r.logger.Warn("some services failed to list their library", "err", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(songs, cmd.Bool("pretty"))
	}

	if len(songs) == 0 {
		r.writePlain("Library is empty.\n")
		return nil
	}

	for i, song := range songs {
		line := song.Title
		if names := song.ArtistNames(); len(names) > 0 {
			line += " - " + strings.Join(names, ", ")
		}
		if song.Duration > 0 {
			line += " [" + formatDuration(song.Duration) + "]"
		}
		r.writePlain("%3d. [%s] %s\n", i+1, song.Type, line)
	}
	return nil
}

func (r *Runner) libraryAlbums(ctx context.Context, engine *Engine, cmd *cli.Command) error {
	albums, err := engine.registry.LibraryAlbums(ctx)
	if err != nil {
		r.logger.Warn("some services failed to list their albums", "err", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(albums, cmd.Bool("pretty"))
	}
	if len(albums) == 0 {
		r.writePlain("No albums.\n")
		return nil
	}

	for i, album := range albums {
		line := album.Title
		var names []string
		for _, artist := range album.Artists {
			if artist.Inline() && artist.Title != "" {
				names = append(names, artist.Title)
			}
		}
		if len(names) > 0 {
			line += " - " + strings.Join(names, ", ")
		}
		r.writePlain("%3d. [%s] %s\n", i+1, album.Type, line)
	}
	return nil
}

func (r *Runner) libraryArtists(ctx context.Context, engine *Engine, cmd *cli.Command) error {
	artists, err := engine.registry.LibraryArtists(ctx)
	if err != nil {
		r.logger.Warn("some services failed to list their artists", "err", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(artists, cmd.Bool("pretty"))
	}
	if len(artists) == 0 {
		r.writePlain("No artists.\n")
		return nil
	}

	for i, artist := range artists {
		r.writePlain("%3d. [%s] %s\n", i+1, artist.Type, artist.Title)
	}
	return nil
}

func (r *Runner) libraryPlaylists(ctx context.Context, engine *Engine, cmd *cli.Command) error {
	playlists, err := engine.registry.LibraryPlaylists(ctx)
	if err != nil {
		r.logger.Warn("some services failed to list their playlists", "err", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}
	if len(playlists) == 0 {
		r.writePlain("No playlists.\n")
		return nil
	}

	for i, playlist := range playlists {
		line := playlist.Title
		if playlist.SongCount > 0 {
			r.writePlain("%3d. [%s] %s (%d songs)\n", i+1, playlist.Type, line, playlist.SongCount)
			continue
		}
		r.writePlain("%3d. [%s] %s\n", i+1, playlist.Type, line)
	}
	return nil
}
