package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/internal/config"
	"github.com/hazyhaar/pinwatch/location"
	"github.com/hazyhaar/pinwatch/notify"
	"github.com/hazyhaar/pinwatch/observation"
	"github.com/hazyhaar/pinwatch/places"
	"github.com/hazyhaar/pinwatch/session"
)

// loadConfig reads the -c file. A missing default file falls back to the
// built-in defaults; a missing explicit file is an error.
func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		logger.Info("pinwatch: no config file, using defaults", "path", path)
		cfg = config.Default()
	case err != nil:
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (observation.Store, error) {
	var st observation.Store
	switch cfg.State.Backend {
	case "sqlite":
		s, err := observation.OpenSQLStore(cfg.State.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open state: %w", err)
		}
		st = s
	default:
		st = observation.NewFileStore(cfg.State.Path, logger)
	}
	if err := st.Load(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return st, nil
}

// newDispatcher wires every configured transport. Unset credentials leave
// the corresponding transport out.
func newDispatcher(cfg *config.Config, logger *slog.Logger) *notify.Dispatcher {
	tg := cfg.Notify.Telegram
	var transports []notify.Transport
	if strings.TrimSpace(tg.BotToken) != "" {
		transports = append(transports, notify.NewTelegram(tg.BotToken))
	}
	if wh := cfg.Notify.Webhook; wh.URL != "" {
		transports = append(transports, notify.NewWebhook(wh.URL,
			notify.WithWebhookRetries(wh.Retries),
			notify.WithWebhookLogger(logger),
		))
	}
	return notify.NewDispatcher(notify.Config{
		Alerts: notify.Channel{Name: "alerts", ChatID: tg.ChatID, ThreadID: tg.TopicID},
		Errors: notify.Channel{Name: "errors", ChatID: tg.ErrorChatID},
		Logger: logger,
	}, transports...)
}

// newFactory starts the browsing-context backend for the configured mode.
func newFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (browser.Factory, error) {
	if cfg.Mode == config.ModeHTTP {
		headers := browser.StorefrontHeaders()
		if path := cfg.Files.SessionHeaders; path != "" {
			u, _ := url.Parse(cfg.Storefront.BaseURL)
			exported, err := session.LoadHeaders(path, u.Hostname())
			if err != nil {
				return nil, fmt.Errorf("session headers: %w", err)
			}
			for k, v := range exported {
				headers[k] = v
			}
			logger.Info("pinwatch: using exported session headers", "path", path, "headers", len(exported))
		}
		f, err := browser.NewHTTPFactory(browser.HTTPConfig{
			BaseURL:   cfg.Storefront.BaseURL,
			UserAgent: cfg.Browser.UserAgent,
			Headers:   headers,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	m := browser.NewManager(browserConfig(cfg, logger))
	if err := m.Start(ctx); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return m, nil
}

func browserConfig(cfg *config.Config, logger *slog.Logger) browser.Config {
	return browser.Config{
		RemoteURL:     cfg.Browser.Remote,
		Headless:      cfg.Browser.Headless,
		Minimized:     cfg.Browser.Minimized,
		XvfbDisplay:   cfg.Browser.XvfbDisplay,
		WindowWidth:   cfg.Browser.WindowWidth,
		WindowHeight:  cfg.Browser.WindowHeight,
		UserAgent:     cfg.Browser.UserAgent,
		Timeout:       cfg.Browser.Timeout,
		ActionTimeout: cfg.Browser.ActionTimeout,
		Settle:        cfg.Poll.PageSettle,
		Logger:        logger,
	}
}

func newResolver(cfg *config.Config, prompter location.Prompter, logger *slog.Logger) (*location.Resolver, error) {
	strategies, err := location.Build(cfg.Resolver.Strategies, location.Deps{
		Geo:      places.New(cfg.Storefront.BaseURL, logger),
		Home:     cfg.Home(),
		Domain:   cfg.Storefront.CookieDomain,
		FlowPath: cfg.Files.Flow,
		Prompter: prompter,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return location.NewResolver(strategies, location.WithLogger(logger)), nil
}

// splitCodes splits comma-separated location codes.
func splitCodes(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
