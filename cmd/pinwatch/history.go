package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pinwatch/catalog"
	"github.com/hazyhaar/pinwatch/observation"
	"github.com/hazyhaar/pinwatch/poll"
)

var historyCmd = &cobra.Command{
	Use:   "history [item URL...]",
	Short: "Show the last recorded status of items",
	Long: `Print the last recorded status of every item at every location.

With the sqlite state backend the recorded changes are listed as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger(cmd)
		cfg, err := loadConfig(cmd, logger)
		if err != nil {
			return err
		}

		raws := cfg.Items
		if len(args) > 0 {
			raws = args
		}
		items, invalid := catalog.ParseItems(raws)
		for _, r := range invalid {
			logger.Warn("pinwatch: skipping invalid item URL", "url", r)
		}
		codes := cfg.Locations
		if raw, _ := cmd.Flags().GetString("pincode"); raw != "" {
			codes = splitCodes(raw)
		}
		codes = poll.Dedupe(codes)
		if len(items) == 0 || len(codes) == 0 {
			return fmt.Errorf("need item URLs and location codes")
		}

		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		return printHistory(ctx, cmd.OutOrStdout(), store, items, codes)
	},
}

func init() {
	historyCmd.Flags().StringP("pincode", "p", "", "comma-separated location codes")
	rootCmd.AddCommand(historyCmd)
}

// historian is implemented by stores that keep past changes.
type historian interface {
	History(ctx context.Context, key observation.Key) ([]observation.Transition, error)
}

func printHistory(ctx context.Context, w io.Writer, st observation.Store, items []catalog.Item, codes []string) error {
	h, withHistory := st.(historian)
	for _, it := range items {
		for _, code := range codes {
			key := observation.Key{ItemID: it.ID, Location: code}
			rec, ok := st.Get(key)
			if !ok {
				fmt.Fprintf(w, "%s @ %s: never checked\n", it.Title(), code)
				continue
			}
			fmt.Fprintf(w, "%s @ %s: %s\n", rec.Title, code, rec.Status)
			if !withHistory {
				continue
			}
			trs, err := h.History(ctx, key)
			if err != nil {
				return err
			}
			for _, tr := range trs {
				fmt.Fprintf(w, "  %s -> %s\n", tr.From, tr.To)
			}
		}
	}
	return nil
}
