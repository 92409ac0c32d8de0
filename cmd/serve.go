/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"nofuture/config"
	"nofuture/db"
	"nofuture/feeds"
	"nofuture/server"
	"nofuture/telegram"
	"nofuture/twitter"
	"nofuture/workers"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func twitterTokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "twitter-token",
		Usage:   "Bearer token for the feed source API",
		EnvVars: []string{"TWITTER_TOKEN", "NOFUTURE_TWITTER_TOKEN"},
	}
}

func telegramTokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "telegram-token",
		Usage:   "Bot token for the chat platform",
		EnvVars: []string{"TELEGRAM_TOKEN", "NOFUTURE_TELEGRAM_TOKEN"},
	}
}

// serveCmd represents the serve command
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the API and run the ingestion and publishing workers",
		Description: `Starts the HTTP server together with both workers.

Migrates the database, tracks the authors listed in the configuration file
and then runs until interrupted. A failing store stops the process so a
supervisor can restart it.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on, overrides server.port",
				EnvVars: []string{"NOFUTURE_PORT"},
			},
			twitterTokenFlag(),
			telegramTokenFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if ctx.IsSet("port") {
				cfg.Server.Port = ctx.Int("port")
			}

			dsn := ctx.String("database")
			if err := db.Migrate(dsn); err != nil {
				return err
			}
			store, err := db.Open(dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := twitterClient(ctx, cfg)
			if err != nil {
				return err
			}
			sender, err := telegramSender(ctx)
			if err != nil {
				return err
			}

			service := feeds.NewService(store, client)
			for _, author := range cfg.Authors {
				if _, err := service.Track(ctx.Context, author.Handle); err != nil {
					log.WithField("handle", author.Handle).Warnf("Could not track author: %s", err)
				}
			}

			app := server.Server(&server.ServerConfig{
				Service: service,
				Store:   store,
			})

			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(sigCtx)

			g.Go(func() error {
				return workers.NewIngester(store, client, cfg.Ingest.Interval).Run(gctx)
			})
			g.Go(func() error {
				return workers.NewPublisher(store, sender, cfg.Publish.Interval).Run(gctx)
			})
			g.Go(func() error {
				log.WithField("port", cfg.Server.Port).Info("Starting server")
				return app.Listen(fmt.Sprintf(":%d", cfg.Server.Port))
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("Gracefully shutting down...")
				return app.ShutdownWithTimeout(60 * time.Second)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("Done!")
			return nil
		},
	}
}

func twitterClient(ctx *cli.Context, cfg *config.TomlConfig) (*twitter.Client, error) {
	token := ctx.String("twitter-token")
	if token == "" {
		return nil, errors.New("a feed source token is required, set TWITTER_TOKEN")
	}
	return twitter.NewClient(token,
		twitter.WithBaseURL(cfg.Twitter.BaseURL),
		twitter.WithHTTPClient(&http.Client{Timeout: cfg.Twitter.Timeout}),
		twitter.WithMaxResults(cfg.Twitter.MaxResults),
		twitter.WithMaxRetries(cfg.Twitter.MaxRetries),
	), nil
}

func telegramSender(ctx *cli.Context) (*telegram.Sender, error) {
	token := ctx.String("telegram-token")
	if token == "" {
		return nil, errors.New("a chat bot token is required, set TELEGRAM_TOKEN")
	}
	return telegram.NewSender(token)
}
