// Command pinwatch monitors item availability at delivery locations on a
// location-gated storefront and alerts when an item comes back in stock.
//
// Usage:
//
//	pinwatch run -c pinwatch.yaml                  # one cycle over configured items
//	pinwatch run -p 110001,560001 --loop 5m URL... # poll forever
//	pinwatch run --http -s session.har URL...      # HTTP-only, exported session
//	pinwatch record -c pinwatch.yaml               # record the location flow
//	pinwatch test-notify -c pinwatch.yaml          # send one test alert
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "pinwatch",
	Short: "Watch storefront stock at delivery locations",
	Long: `pinwatch checks whether catalog items can be bought at given delivery
locations and sends an alert when one comes back in stock.

Each location gets a fresh browsing context. The location is set by the
first strategy that works: session cookies, the storefront's location API,
driving the location picker, replaying a recorded flow, or asking you.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pinwatch %s (%s)\n", version, commit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "pinwatch.yaml", "path to YAML config file")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "json", "log format: json, text")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("pinwatch: fatal", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the persistent flags and
// installs it as the default.
func newLogger(cmd *cobra.Command) *slog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")

	opts := &slog.HandlerOptions{Level: parseLevel(levelName)}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
