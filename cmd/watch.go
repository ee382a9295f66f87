package cmd

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"moments/apperror"
	"moments/feed"
	"moments/models"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow new moments as they are posted",
		Description: `Prints the newest page of moments, then checks for newer moments
		on an interval and prints them as they show up.

		Failed checks are retried with an exponential backoff. Stop with Ctrl-C.`,
		Flags: append(clientFlags(),
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Time between checks for new moments",
				EnvVars: []string{"MOMENTS_POLL_INTERVAL"},
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := clientConfig(ctx)
			if err != nil {
				return err
			}
			if ctx.IsSet("interval") {
				cfg.Client.PollInterval.Duration = ctx.Duration("interval")
			}
			if cfg.Client.PollInterval.Duration <= 0 {
				return cli.Exit("interval must be positive", 2)
			}

			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			newCtrl := func() *feed.Controller {
				return newController(ctx.Context, client, cfg)
			}

			err = watch(ctx.Context, ctx.App.Writer, newCtrl, cfg.Client.PollInterval.Duration)
			if ctx.Context.Err() != nil {
				log.Info("Stopped watching")
				return nil
			}
			return userError(err)
		},
	}
}

func newBackOff(interval time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval
	bo.MaxInterval = 10 * interval
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // Never stop retrying
	bo.Reset()
	return bo
}

// watch prints the feed and then newly added moments until ctx is done. Only
// errors that cannot be retried are returned.
func watch(ctx context.Context, w io.Writer, newCtrl func() *feed.Controller, interval time.Duration) error {
	ctrl := newCtrl()
	defer func() { ctrl.Close() }()

	_, events := ctrl.Subscribe()
	ctrl.Start()

	bo := newBackOff(interval)
	shown := 0
	op := feed.OpLoadOlder

	for {
		_, err := waitFor(ctx, events, op)
		switch {
		case err == nil:
			bo.Reset()
			shown = printNew(w, ctrl.Items(), shown)
			err = sleepContext(ctx, interval)
		case apperror.IsConnectivity(err):
			delay := bo.NextBackOff()
			log.WithFields(log.Fields{
				"kind":  apperror.Kind(err),
				"error": err,
				"retry": delay,
			}).Warn("Checking for new moments failed")
			err = sleepContext(ctx, delay)
		}
		if err != nil {
			return err
		}

		// An empty feed without a cursor has nothing to page from or to
		// compare against, so start over from the first page
		if len(ctrl.Items()) == 0 && !ctrl.CanLoadMore() {
			ctrl.Close()
			ctrl = newCtrl()
			_, events = ctrl.Subscribe()
			ctrl.Start()
			op = feed.OpLoadOlder
			continue
		}

		if len(ctrl.Items()) == 0 {
			op = feed.OpLoadOlder
		} else {
			op = feed.OpLoadNewer
		}
		if !ctrl.Refresh() {
			return feed.ErrClosed
		}
	}
}

// printNew prints the moments added to the front of items since shown were
// printed, oldest first, and returns the new count
func printNew(w io.Writer, items []models.Moment, shown int) int {
	for i := len(items) - shown - 1; i >= 0; i-- {
		printMoment(w, items[i])
	}
	return len(items)
}
