package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the streaming catalog authorization",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Run the interactive authorization flow",
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the authorization state of every service",
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Revoke and forget the catalog credentials",
				Action: r.AuthLogout,
			},
		},
	}
}

// AuthLogin runs the interactive catalog authorization.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.ensureEngine(ctx)
	if err != nil {
		return err
	}
	if engine.catalogAuth == nil {
		return cli.Exit("no streaming catalog configured, fill in [credentials.catalog] first", 1)
	}

	if _, err := engine.catalogAuth.Authorize(ctx); err != nil {
		return err
	}
	r.writePlain("Authorized.\n")
	return nil
}

// AuthStatus lists every registered service and its credential state.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.ensureEngine(ctx)
	if err != nil {
		return err
	}

	for _, svc := range engine.registry.Services() {
		authorization := svc.Provider().Authorization()
		switch {
		case authorization == nil:
			r.writePlain("%-10s no authorization needed\n", svc.Name())
		case authorization.Authorized():
			r.writePlain("%-10s authorized\n", svc.Name())
		default:
			// An unauthorized session may still restore passively.
			if _, err := authorization.PassivelyAuthorize(ctx); err == nil && authorization.Authorized() {
				r.writePlain("%-10s authorized\n", svc.Name())
			} else {
				r.writePlain("%-10s not authorized\n", svc.Name())
			}
		}
	}
	return nil
}

// AuthLogout revokes the catalog credentials.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.ensureEngine(ctx)
	if err != nil {
		return err
	}
	if engine.catalogAuth == nil {
		return cli.Exit("no streaming catalog configured", 1)
	}

	if err := engine.catalogAuth.Unauthorize(ctx); err != nil {
		return err
	}
	r.writePlain("Logged out.\n")
	return nil
}
