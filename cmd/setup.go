package main

import (
	"context"
	"fmt"
	"os"

	"github.com/UniMusic-app/unimusic/internal/images"
	"github.com/UniMusic-app/unimusic/internal/metadata"
	"github.com/UniMusic-app/unimusic/internal/shared"
	"github.com/UniMusic-app/unimusic/internal/state"
	"github.com/urfave/cli/v3"
)

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the configuration file and initialize the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// Setup writes a config file when none exists and creates the database
// tables every store needs.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		if config, err = shared.LoadConfig(configPath); err != nil {
			return err
		}
		r.config = config
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	if _, err := state.NewStore(db, r.logger); err != nil {
		return err
	}
	if _, err := images.NewStore(db, r.logger); err != nil {
		return err
	}
	if _, err := metadata.NewOverrides(db); err != nil {
		return err
	}

	r.writePlain("Setup complete.\n")
	r.writePlain("Config: %s\n", configPath)
	r.writePlain("Database: %s\n", config.Database.Path)
	return nil
}
