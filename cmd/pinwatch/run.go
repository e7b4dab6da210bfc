package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/catalog"
	"github.com/hazyhaar/pinwatch/fetch"
	"github.com/hazyhaar/pinwatch/internal/config"
	"github.com/hazyhaar/pinwatch/location"
	"github.com/hazyhaar/pinwatch/poll"
	"github.com/hazyhaar/pinwatch/session"
)

var runCmd = &cobra.Command{
	Use:   "run [item URL...]",
	Short: "Check items at every location, once or on a loop",
	Long: `Check every item at every location and alert on changes.

Item URLs given as arguments replace the configured items. Locations come
from -p or the config file; in browser mode with none configured you set
the location by hand in the browser window.

Example:
  pinwatch run -c pinwatch.yaml
  pinwatch run -p 110001,560001 --loop 5m https://www.bigbasket.com/pd/1001/fresho-cauliflower-1-pc/`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringP("pincode", "p", "", "comma-separated location codes")
	f.Bool("http", false, "HTTP-only mode, no browser")
	f.Bool("headless", false, "run Chrome headless")
	f.Duration("loop", 0, "repeat every interval (e.g. 5m); 0 runs once")
	f.StringP("session", "s", "", "exported headers file (HAR, cURL or Name: value); implies --http")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd)

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	raws := cfg.Items
	if len(args) > 0 {
		raws = args
	}
	items, invalid := catalog.ParseItems(raws)
	for _, r := range invalid {
		logger.Warn("pinwatch: skipping invalid item URL", "url", r)
	}
	if len(items) == 0 {
		return fmt.Errorf("no item URLs: pass them as arguments or set items in the config")
	}

	codes := cfg.Locations
	if raw, _ := cmd.Flags().GetString("pincode"); raw != "" {
		codes = splitCodes(raw)
	}
	codes = poll.Dedupe(codes)
	if len(codes) == 0 {
		if cfg.Mode == config.ModeHTTP {
			return fmt.Errorf("no location codes: pass -p or set locations in the config")
		}
		codes = []string{location.Sentinel}
	}

	// The operator can only act on a visible browser.
	var prompter location.Prompter
	if cfg.Mode == config.ModeBrowser {
		prompter = &location.LinePrompter{In: os.Stdin, Out: os.Stdout}
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	factory, err := newFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer factory.Close()

	resolver, err := newResolver(cfg, prompter, logger)
	if err != nil {
		return err
	}

	var cookies []browser.Cookie
	if rec, ok := session.LoadRecord(cfg.Files.SessionRecord, logger); ok {
		cookies = rec.Cookies
	}

	o, err := poll.New(poll.Config{
		Items:             items,
		Locations:         codes,
		Home:              cfg.Home(),
		AutoResolve:       cfg.Resolver.Auto,
		PreferStructured:  cfg.PreferStructured,
		ScreenshotOnAlert: cfg.ScreenshotOnAlert,
		AlertEveryInStock: cfg.AlertEveryInStock,
		SessionCookies:    cookies,
		Interval:          cfg.Poll.Interval,
		ItemDelay:         cfg.Poll.ItemDelay,
		LocationDelay:     cfg.Poll.LocationDelay,
		Logger:            logger,
	}, poll.Deps{
		Factory:  factory,
		Resolver: resolver,
		Observer: fetch.New(cfg.Storefront.BaseURL,
			fetch.WithLogger(logger),
			fetch.WithBuildID(cfg.Storefront.BuildID)),
		Store:    store,
		Notifier: newDispatcher(cfg, logger),
		Prompter: prompter,
	})
	if err != nil {
		return err
	}
	defer o.Close()

	logger.Info("pinwatch: starting",
		"mode", cfg.Mode,
		"items", len(items),
		"locations", codes,
		"strategies", resolver.Strategies(),
		"interval", cfg.Poll.Interval.String(),
	)
	return o.Run(ctx)
}

// applyRunFlags lets explicit flags override the config file.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if v, _ := f.GetBool("http"); v {
		cfg.Mode = config.ModeHTTP
	}
	if f.Changed("headless") {
		cfg.Browser.Headless, _ = f.GetBool("headless")
	}
	if f.Changed("loop") {
		cfg.Poll.Interval, _ = f.GetDuration("loop")
	}
	// Exported headers only make sense without a browser.
	if v, _ := f.GetString("session"); v != "" {
		cfg.Files.SessionHeaders = v
		cfg.Mode = config.ModeHTTP
	}
}
