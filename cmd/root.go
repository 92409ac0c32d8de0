/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "nofuture",
		Usage: "Mirror author timelines and republish curated posts to chat channels",
		Description: `Mirrors the public posts of tracked authors into a local database
		and republishes the posts subscribers schedule to their linked chat channels.

		Two workers run side by side: the ingester polls every tracked author for
		posts newer than the newest one stored, the publisher delivers queued posts
		and removes them from the queue after a single attempt.

		Flags can generally be set via environment variables, e.g.:

		--database => NOFUTURE_DATABASE=nofuture.db
		--port => NOFUTURE_PORT=3000

		A .env file in the working directory is loaded on start.
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "nofuture.db",
				Usage:   "SQLite database file, or a postgres:// URL",
				EnvVars: []string{"NOFUTURE_DATABASE", "DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "nofuture.toml",
				Usage:   "Path to the TOML configuration file",
				EnvVars: []string{"NOFUTURE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"NOFUTURE_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "Log as JSON",
				EnvVars: []string{"NOFUTURE_LOG_JSON"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			if ctx.Bool("log-json") {
				log.SetFormatter(&log.JSONFormatter{})
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			trackCmd(),
			promoteCmd(),
			ingestCmd(),
			publishCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// Execute loads .env and runs the app with the process arguments
func Execute() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("Could not load .env file: %s", err)
	}

	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
