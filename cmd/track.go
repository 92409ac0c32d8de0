/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"nofuture/config"
	"nofuture/db"
	"nofuture/feeds"
	"nofuture/models"
	"strconv"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"
)

var powerLevels = map[string]int{
	"user":  models.PowerUser,
	"mod":   models.PowerMod,
	"admin": models.PowerAdmin,
}

// trackCmd represents the track command
func trackCmd() *cli.Command {
	return &cli.Command{
		Name:      "track",
		Usage:     "Start tracking an author",
		ArgsUsage: "[handle or platform id]",
		Description: `Looks the author up on the feed source and stores it, so the ingester
picks up its posts on the next pass. Asks for the handle when none is given.`,
		Flags: []cli.Flag{twitterTokenFlag()},
		Action: func(ctx *cli.Context) error {
			ref := ctx.Args().First()
			if ref == "" {
				var err error
				ref, err = prompt.New().Ask("Handle:").Input("golang")
				if err != nil {
					return err
				}
			}

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

			author, err := feeds.NewService(store, client).Track(ctx.Context, ref)
			if err != nil {
				return fmt.Errorf("could not track %s: %w", ref, err)
			}
			fmt.Printf("Tracking %s (@%s), internal id %d\n", author.Name, author.Username, author.Id)
			return nil
		},
	}
}

// promoteCmd represents the promote command
func promoteCmd() *cli.Command {
	return &cli.Command{
		Name:      "promote",
		Usage:     "Set the power level of a subscriber",
		ArgsUsage: "<subscriber id>",
		Description: `Moderators and admins may track new authors through the API.
The subscriber is created if it does not exist yet.`,
		Action: func(ctx *cli.Context) error {
			id, err := strconv.ParseInt(ctx.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid subscriber id %q", ctx.Args().First())
			}

			level, err := prompt.New().Ask("Power level:").Choose([]string{"user", "mod", "admin"})
			if err != nil {
				return err
			}

			store, err := db.Open(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.EnsureSubscriber(ctx.Context, id); err != nil {
				return err
			}
			if err := store.SetPowerLevel(ctx.Context, id, powerLevels[level]); err != nil {
				return err
			}
			fmt.Printf("Subscriber %d is now %s\n", id, level)
			return nil
		},
	}
}
