package cmd

import (
	"github.com/urfave/cli/v2"

	"moments/db"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured database. Will create the database if it does not exist.`,
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := serverConfig(ctx)
			if err != nil {
				return err
			}
			return db.Migrate(cfg.Server.Database)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration`,
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := serverConfig(ctx)
			if err != nil {
				return err
			}
			return db.Rollback(cfg.Server.Database)
		},
	}
}
