/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"nofuture/config"
	"nofuture/db"
	"nofuture/workers"

	"github.com/urfave/cli/v2"
)

// ingestCmd represents the ingest command
func ingestCmd() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Run a single ingestion pass",
		Description: `Fetches new posts of every tracked author once and exits.

Can be run as a cron job instead of the long running serve command.`,
		Flags: []cli.Flag{twitterTokenFlag()},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			client, err := twitterClient(ctx, cfg)
			if err != nil {
				return err
			}
			store, err := db.Open(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			return workers.NewIngester(store, client, cfg.Ingest.Interval).Pass(ctx.Context)
		},
	}
}

// publishCmd represents the publish command
func publishCmd() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Run a single publishing pass",
		Description: `Delivers every queued post to its subscriber's channel once and
removes the attempted entries from the queue.

Can be run as a cron job instead of the long running serve command.`,
		Flags: []cli.Flag{telegramTokenFlag()},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			sender, err := telegramSender(ctx)
			if err != nil {
				return err
			}
			store, err := db.Open(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			return workers.NewPublisher(store, sender, cfg.Publish.Interval).Pass(ctx.Context)
		},
	}
}
