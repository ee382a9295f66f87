package cmd

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"moments/config"
	"moments/db"
	"moments/server"
)

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Usage:   "SQLite database file location",
		EnvVars: []string{"MOMENTS_DATABASE"},
	}
}

// serverConfig loads the configuration file and applies the server flags that
// were set on top of it
func serverConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("database") {
		cfg.Server.Database = ctx.String("database")
	}
	if ctx.IsSet("host") {
		cfg.Server.Host = ctx.String("host")
	}
	if ctx.IsSet("port") {
		cfg.Server.Port = ctx.Int("port")
	}
	if ctx.IsSet("retention") {
		cfg.Server.Retention.Duration = ctx.Duration("retention")
	}

	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	return cfg, nil
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the moments API for development",
		Description: `Starts an HTTP server implementing the moments API, backed by an
		SQLite database. Migrations are applied on startup.

		Point the client at it with --base-url http://localhost:3000/api/v1/

		Prometheus metrics are served on /metrics.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Host to listen on",
				EnvVars: []string{"MOMENTS_HOST"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				EnvVars: []string{"MOMENTS_PORT"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := serverConfig(ctx)
			if err != nil {
				return err
			}

			if err := db.Migrate(cfg.Server.Database); err != nil {
				return fmt.Errorf("error running migrations: %w", err)
			}

			store, err := db.Open(cfg.Server.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			app := server.Server(&server.ServerConfig{
				Store:        store,
				DefaultLimit: cfg.Server.DefaultLimit,
				MaxLimit:     cfg.Server.MaxLimit,
			})

			errs := make(chan error, 1)
			go func() {
				addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
				log.WithFields(log.Fields{
					"address":  addr,
					"database": cfg.Server.Database,
				}).Info("Starting server")
				errs <- app.Listen(addr)
			}()

			select {
			case err := <-errs:
				return err
			case <-ctx.Context.Done():
				log.Info("Gracefully shutting down")
				return app.ShutdownWithTimeout(30 * time.Second)
			}
		},
	}
}
