package cmd

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"moments/feed"
)

func feedCmd() *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Print the latest moments",
		Description: `Loads the newest page of moments and prints it, newest first.

		Use --pages to page further back in history. Paging stops early when
		the server has no more moments.

		With --json each moment is printed as a JSON object on a single line.`,
		Flags: append(clientFlags(),
			&cli.IntFlag{
				Name:    "pages",
				Aliases: []string{"n"},
				Value:   1,
				Usage:   "Number of pages to load",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print moments as JSON lines",
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := clientConfig(ctx)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			ctrl := newController(ctx.Context, client, cfg)
			defer ctrl.Close()

			if err := loadPages(ctx.Context, ctrl, ctx.Int("pages")); err != nil {
				return userError(err)
			}

			if ctx.Bool("json") {
				return printJSON(ctx.App.Writer, ctrl.Items())
			}
			printFeed(ctx.App.Writer, ctrl)
			return nil
		},
	}
}

// loadPages starts ctrl and pages backwards until pages pages are loaded or
// the server has nothing more
func loadPages(ctx context.Context, ctrl *feed.Controller, pages int) error {
	key, events := ctrl.Subscribe()
	defer ctrl.Unsubscribe(key)

	ctrl.Start()
	for page := 1; ; page++ {
		if _, err := waitFor(ctx, events, feed.OpLoadOlder); err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"page":     page,
			"total":    len(ctrl.Items()),
			"has_more": ctrl.CanLoadMore(),
		}).Debug("Loaded page")

		if page >= pages || !ctrl.LoadOlder() {
			return nil
		}
	}
}

func printFeed(w io.Writer, ctrl *feed.Controller) {
	rows := ctrl.Snapshot()
	if len(rows) == 0 {
		io.WriteString(w, "No moments yet.\n")
		return
	}
	printRows(w, rows)
	if ctrl.CanLoadMore() {
		io.WriteString(w, "More moments available, use --pages to load them.\n")
	}
}
