package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"moments/db"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing moments that are old.

		Removes moments older than the retention period, 90 days unless
		configured otherwise. This keeps the development database small.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.DurationFlag{
				Name:    "retention",
				Usage:   "Remove moments older than this",
				EnvVars: []string{"MOMENTS_RETENTION"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := serverConfig(ctx)
			if err != nil {
				return err
			}

			store, err := db.Open(cfg.Server.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.Tidy(ctx.Context, time.Now().Add(-cfg.Server.Retention.Duration))
			if err != nil {
				return err
			}

			fmt.Fprintf(ctx.App.Writer, "Removed %d moments\n", deleted)
			return nil
		},
	}
}
