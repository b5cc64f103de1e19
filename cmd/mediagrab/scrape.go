package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediagrab/pkg/auth"
	"mediagrab/pkg/config"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/scraper"
	"mediagrab/pkg/sites"
	"mediagrab/pkg/ui"
)

var (
	outputDir   string
	cookiesFile string
	apiKey      string
	pages       string
	prefix      string
	overwrite   string
	flat        bool
	probe       bool
	excludeExt  []string
	concurrent  int
	retries     int
	delay       time.Duration
	useBrowser  bool
	forceMode   string
	noProgress  bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Download every media file reachable from a URL",
	Long: `Download every full-resolution image and video reachable from a URL.

The handler is chosen from the URL: forum threads, pixeldrain, bunkr,
?o=N creator profiles, and a generic gallery fallback. Use --mode to force one.
Files that failed every attempt are listed in failed_urls.txt in the
output directory.`,
	Example: `  # Download a whole forum thread
  mediagrab scrape https://forum.example/threads/beach.123/

  # Only pages 2 to 5, with a members-only session
  mediagrab scrape https://forum.example/threads/beach.123/ --pages 2-5 --cookies cookies.txt

  # A pixeldrain list into one flat directory
  mediagrab scrape https://pixeldrain.com/l/abc123 --output ./dl --flat

  # Drop small images by probing their dimensions
  mediagrab scrape https://gallery.example/set/1 --probe --exclude-ext gif,svg`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	addScrapeFlags(scrapeCmd)
	// scrape is the default command, so the root command takes its flags too
	addScrapeFlags(rootCmd)

	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 && looksLikeURL(args[0]) {
			return runScrape(cmd, args[:1])
		}
		return cmd.Help()
	}
}

func addScrapeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&outputDir, "output", "o", "", "output directory (default: ./downloads)")
	f.StringVar(&cookiesFile, "cookies", "", "Netscape cookies.txt for members-only pages")
	f.StringVar(&apiKey, "api-key", "", "pixeldrain API key (default: stored credential)")
	f.StringVar(&pages, "pages", "", `pages to crawl, e.g. "1-5", "2,4" or "all"`)
	f.StringVar(&prefix, "prefix", "", "filename prefix; a trailing _ gives prefix_001.jpg")
	f.StringVar(&overwrite, "overwrite", "", "existing files: skip, overwrite or rename")
	f.BoolVar(&flat, "flat", false, "save into the output directory without a per-target folder")
	f.BoolVar(&probe, "probe", false, "probe image dimensions to drop thumbnails")
	f.StringSliceVar(&excludeExt, "exclude-ext", nil, "extensions to skip, e.g. gif,webp")
	f.IntVar(&concurrent, "concurrent", 0, "parallel downloads (1-10)")
	f.IntVar(&retries, "retries", 0, "attempts per file (1-5)")
	f.DurationVar(&delay, "delay", 0, "delay between requests")
	f.BoolVar(&useBrowser, "browser", false, "use headless Chrome for protected links")
	f.StringVar(&forceMode, "mode", "", "force a handler: "+modeList())
	f.BoolVar(&noProgress, "no-progress", false, "disable the progress line and summary")
}

func modeList() string {
	modes := sites.DefaultRegistry().Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func looksLikeURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// scrapeFlags collects only the flags set on the command line, so config
// file and environment values are not clobbered by flag defaults
func scrapeFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			f = cmd.InheritedFlags().Lookup(name)
		}
		return f != nil && f.Changed
	}

	if changed("output") {
		flags["output"] = outputDir
	}
	if changed("cookies") {
		flags["cookies"] = cookiesFile
	}
	if changed("api-key") {
		flags["api-key"] = apiKey
	}
	if changed("pages") {
		flags["pages"] = pages
	}
	if changed("prefix") {
		flags["prefix"] = prefix
	}
	if changed("overwrite") {
		flags["overwrite"] = overwrite
	}
	if changed("flat") {
		flags["flat"] = flat
	}
	if changed("probe") {
		flags["probe"] = probe
	}
	if changed("exclude-ext") {
		flags["exclude-ext"] = excludeExt
	}
	if changed("concurrent") {
		flags["concurrent"] = concurrent
	}
	if changed("retries") {
		flags["retries"] = retries
	}
	if changed("delay") {
		flags["delay"] = delay
	}
	if changed("browser") {
		flags["browser"] = useBrowser
	}
	if changed("log-level") {
		flags["log-level"] = logLevel
	}
	return flags
}

func runScrape(cmd *cobra.Command, args []string) error {
	target := strings.TrimSpace(args[0])

	cfg, err := config.Load(configFile, scrapeFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("mediagrab starting")

	if cfg.HTTP.APIKey == "" {
		cfg.HTTP.APIKey = storedAPIKey(log, "pixeldrain")
	}

	opts := []scraper.Option{
		scraper.WithLogger(log),
		scraper.WithProgress(!noProgress && !ui.IsQuietMode()),
	}
	if forceMode != "" {
		opts = append(opts, scraper.WithMode(sites.Mode(forceMode)))
	}
	if notifications {
		opts = append(opts, scraper.WithNotifier(ui.NewNotifier()))
	}

	s, err := scraper.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.PrintInfo("Target", target)
	report, err := s.Run(ctx, target)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		ui.PrintWarning("Some files failed", report.LedgerPath)
		return nil
	}
	ui.PrintSuccess("Done")
	return nil
}

// storedAPIKey looks the key up in the credential stores. A missing store
// or key only means anonymous access.
func storedAPIKey(log logger.Logger, platform string) string {
	m, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Debug("credential stores unavailable")
		return ""
	}
	key := m.APIKey(platform)
	if key != "" {
		log.WithField("platform", platform).Debug("using stored API key")
	}
	return key
}
