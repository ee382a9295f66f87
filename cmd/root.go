package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"moments/config"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "moments",
		Usage: "Read and post short text moments",
		Description: `A command line client for the moments API.

		Moments are short text posts shown newest first. The client pages
		backwards through history with a server provided cursor and picks up
		newer moments by asking for everything added after the newest one it
		has seen.

		The serve command runs a development server with the same API backed
		by an SQLite database.

		Flags can generally be set via environment variables, e.g.:

		--base-url => MOMENTS_BASE_URL=http://localhost:3000/api/v1/
		--database => MOMENTS_DATABASE=moments.db
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML configuration file",
				EnvVars: []string{"MOMENTS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"MOMENTS_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format (text or json)",
				EnvVars: []string{"MOMENTS_LOG_FORMAT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			return setupLogging(ctx.String("log-level"), ctx.String("log-format"))
		},
		Commands: []*cli.Command{
			feedCmd(),
			watchCmd(),
			postCmd(),
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// Execute runs the CLI until it finishes or the process is interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootApp().RunContext(ctx, os.Args); err != nil {
		log.WithField("error", err).Error("Command failed")
		stop()
		os.Exit(1)
	}
}

// setupLogging sends logs to stderr so command output can be piped
func setupLogging(level string, format string) error {
	log.SetOutput(os.Stderr)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level %q", level), 2)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return cli.Exit(fmt.Sprintf("invalid log format %q", format), 2)
	}
	return nil
}

// loadConfig reads the configuration file named by the global --config flag
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	return cfg, nil
}
