package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"moments/api"
	"moments/apperror"
	"moments/config"
	"moments/feed"
)

// connectivityMessage is shown for every network, server and parse failure
const connectivityMessage = "Could not reach the moments service. Please check your network settings and try again."

func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL of the moments API",
			EnvVars: []string{"MOMENTS_BASE_URL"},
		},
		&cli.IntFlag{
			Name:    "page-size",
			Usage:   "Number of moments requested per page",
			EnvVars: []string{"MOMENTS_PAGE_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "connect-timeout",
			Usage:   "Timeout for establishing a connection",
			EnvVars: []string{"MOMENTS_CONNECT_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "read-timeout",
			Usage:   "Timeout for reading a response",
			EnvVars: []string{"MOMENTS_READ_TIMEOUT"},
		},
	}
}

// clientConfig loads the configuration file and applies the client flags that
// were set on top of it
func clientConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("base-url") {
		cfg.Client.BaseURL = ctx.String("base-url")
	}
	if ctx.IsSet("page-size") {
		cfg.Client.PageSize = ctx.Int("page-size")
	}
	if ctx.IsSet("connect-timeout") {
		cfg.Client.ConnectTimeout.Duration = ctx.Duration("connect-timeout")
	}
	if ctx.IsSet("read-timeout") {
		cfg.Client.ReadTimeout.Duration = ctx.Duration("read-timeout")
	}

	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	return cfg, nil
}

func newClient(cfg *config.Config) (*api.Client, error) {
	transport := api.NewHTTPTransport(api.TransportConfig{
		ConnectTimeout: cfg.Client.ConnectTimeout.Duration,
		ReadTimeout:    cfg.Client.ReadTimeout.Duration,
		UserAgent:      cfg.Client.UserAgent,
	})

	client, err := api.NewClient(cfg.Client.BaseURL, transport)
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}

	log.WithFields(log.Fields{
		"base_url":  cfg.Client.BaseURL,
		"page_size": cfg.Client.PageSize,
	}).Debug("API client configured")

	return client, nil
}

func newController(ctx context.Context, client feed.API, cfg *config.Config) *feed.Controller {
	return feed.New(ctx, client, feed.Config{PageSize: cfg.Client.PageSize})
}

// waitFor blocks until the controller reports the outcome of op. A failed
// operation is returned as its error.
func waitFor(ctx context.Context, events <-chan feed.Event, op feed.Operation) (feed.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return feed.Event{}, ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return feed.Event{}, feed.ErrClosed
			}
			if evt.Op != op {
				continue
			}
			switch evt.Kind {
			case feed.EventFailed:
				return evt, evt.Err
			case feed.EventSubmitted:
				return evt, nil
			case feed.EventChanged:
				if !evt.Loading {
					return evt, nil
				}
			}
		}
	}
}

// userError turns a failure into the message shown to the user
func userError(err error) error {
	var appErr *apperror.Error
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, apperror.ErrValidation) && errors.As(err, &appErr):
		return cli.Exit(fmt.Sprintf("Invalid %s: %s", appErr.Field, appErr.Message), 1)
	case apperror.IsConnectivity(err):
		log.WithFields(log.Fields{
			"kind":  apperror.Kind(err),
			"error": err,
		}).Debug("Request failed")
		return cli.Exit(connectivityMessage, 1)
	}
	return err
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
