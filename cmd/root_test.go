package cmd

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v2"
)

func TestRootAppCommands(t *testing.T) {
	app := RootApp()

	names := lo.Map(app.Commands, func(c *cli.Command, _ int) string { return c.Name })
	assert.ElementsMatch(t, []string{"serve", "migrate", "rollback", "track", "promote", "ingest", "publish"}, names)
	assert.Len(t, lo.Uniq(names), len(names))
}

func TestTokensAreRequired(t *testing.T) {
	t.Setenv("TWITTER_TOKEN", "")
	t.Setenv("NOFUTURE_TWITTER_TOKEN", "")

	err := RootApp().Run([]string{"nofuture", "--config", t.TempDir() + "/missing.toml", "ingest"})
	assert.ErrorContains(t, err, "TWITTER_TOKEN")
}
