package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagrab/pkg/config"
)

func TestLooksLikeURL(t *testing.T) {
	assert.True(t, looksLikeURL("https://forum.example/threads/1/"))
	assert.True(t, looksLikeURL("http://x"))
	assert.False(t, looksLikeURL("scrape"))
	assert.False(t, looksLikeURL("forum.example"))
}

func TestScrapeFlagsOnlyChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addScrapeFlags(cmd)

	assert.Empty(t, scrapeFlags(cmd))

	require.NoError(t, cmd.Flags().Set("concurrent", "4"))
	require.NoError(t, cmd.Flags().Set("exclude-ext", "gif,svg"))
	require.NoError(t, cmd.Flags().Set("flat", "true"))
	require.NoError(t, cmd.Flags().Set("delay", "2s"))
	require.NoError(t, cmd.Flags().Set("prefix", "beach_"))

	flags := scrapeFlags(cmd)
	assert.Len(t, flags, 5)

	cfg := config.DefaultConfig()
	cfg.MergeCommandLineFlags(flags)
	assert.Equal(t, 4, cfg.Acquire.Concurrent)
	assert.Equal(t, []string{"gif", "svg"}, cfg.Filter.ExcludeExtensions)
	assert.True(t, cfg.Output.FlatLayout)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RequestDelay)
	assert.Equal(t, "beach_", cfg.Output.FilenamePrefix)
	// untouched values keep their defaults
	assert.Equal(t, config.OverwriteSkip, cfg.Output.Overwrite)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, n := range []string{"scrape", "auth", "config"} {
		assert.True(t, names[n], n)
	}
	assert.Contains(t, modeList(), "pixeldrain")
}
