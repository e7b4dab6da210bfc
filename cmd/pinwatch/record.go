package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/flow"
	"github.com/hazyhaar/pinwatch/location"
	"github.com/hazyhaar/pinwatch/session"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the location flow for later playback",
	Long: `Open a visible browser on the storefront and record how you set the
delivery location. Clicks and typing are saved to the flow file, with the
typed code replaced by a placeholder, and the session (cookies plus the
location-related network requests) to the session record file.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd)

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	bcfg := browserConfig(cfg, logger)
	bcfg.Headless = false
	bcfg.Minimized = false
	m := browser.NewManager(bcfg)
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer m.Close()

	bc, err := m.NewContext(ctx)
	if err != nil {
		return err
	}
	defer bc.Close()

	page, ok := bc.(browser.Instrumented)
	if !ok {
		return fmt.Errorf("record: browsing context cannot run page scripts")
	}
	if err := bc.Navigate(ctx, cfg.Home()); err != nil {
		return fmt.Errorf("record: open home page: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p := &location.LinePrompter{In: os.Stdin, Out: os.Stdout}
		msg := "Set your delivery location in the browser (type any code; it is saved as " +
			flow.Placeholder + "), then press Enter here..."
		if err := p.Prompt(ctx, msg); err != nil {
			logger.Warn("pinwatch: record prompt ended", "error", err)
		}
	}()

	rec := &flow.Recorder{Logger: logger}
	capture, err := rec.Record(ctx, page, done, func(p flow.Progress) {
		fmt.Fprintf(os.Stdout, "\r  captured %d steps, %d requests", p.Steps, p.Requests)
	})
	fmt.Fprintln(os.Stdout)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}

	saveCtx := context.WithoutCancel(ctx)
	if err := flow.Save(cfg.Files.Flow, flow.Flow{Steps: capture.Steps}); err != nil {
		return err
	}
	cookies, err := bc.Cookies(saveCtx)
	if err != nil {
		logger.Warn("pinwatch: read cookies failed", "error", err)
	}
	record := session.NewRecord(capture, cookies, bc.CurrentURL(), time.Now())
	if err := session.SaveRecord(cfg.Files.SessionRecord, record); err != nil {
		return err
	}

	logger.Info("pinwatch: recorded",
		"steps", len(capture.Steps),
		"requests", len(capture.Requests),
		"location_apis", len(record.NetworkLocationAPIs),
		"flow", cfg.Files.Flow,
		"session_record", cfg.Files.SessionRecord,
	)
	return nil
}
