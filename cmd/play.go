package main

import (
	"context"
	"strings"
	"sync"

	"github.com/UniMusic-app/unimusic/internal/objects"
	"github.com/UniMusic-app/unimusic/internal/playback"
	"github.com/urfave/cli/v3"
)

func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Search for songs and play them",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "query",
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Queue every search result instead of the first",
			},
			&cli.FloatFlag{
				Name:  "volume",
				Usage: "Playback volume between 0 and 1",
				Value: 1,
			},
		},
		Action: r.Play,
	}
}

// Play queues search results and blocks until the queue runs out or the
// context is cancelled.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return cli.Exit("usage: play <query>", 1)
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

	if !cmd.Bool("all") {
		results = results[:1]
	}

	var songs []*objects.Song
	for _, result := range results {
		song, err := engine.registry.GetSongFromSearchResult(ctx, result)
		if err != nil {
			r.logger.Warn("failed to resolve search result", "id", result.ID, "err", err)
			continue
		}
		songs = append(songs, song)
	}
	if len(songs) == 0 {
		r.writePlain("No playable results for %q.\n", query)
		return nil
	}

	done := r.watchPlayback(engine)

	engine.playback.SetAutoplay(playback.AutoplayOn)
	engine.playback.SetVolume(cmd.Float("volume"))
	engine.playback.SetQueue(songs)

	if err := engine.player.SyncCurrentSong(ctx); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		engine.player.Pause(context.Background())
		return ctx.Err()
	}
}

// watchPlayback announces song changes and closes the returned channel
// when the queue runs out. The player's own ended listener runs first and
// either advances the queue or flags playback as stopped; whatever it
// decided is visible here.
func (r *Runner) watchPlayback(engine *Engine) <-chan struct{} {
	done := make(chan struct{})

	var mu sync.Mutex
	var once sync.Once
	announced := ""

	engine.playback.OnChange(func() {
		mu.Lock()
		defer mu.Unlock()

		if song := engine.playback.CurrentSong(); song != nil && song.ID != announced {
			announced = song.ID
			line := song.Title
			if names := song.ArtistNames(); len(names) > 0 {
				line += " - " + strings.Join(names, ", ")
			}
			r.writePlain("Playing: %s\n", line)
		}
	})

	for _, svc := range engine.registry.Services() {
		svc.Events().OnEnded(func() {
			if !engine.playback.Playing() {
				once.Do(func() { close(done) })
			}
		})
	}

	return done
}
