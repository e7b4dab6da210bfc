package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify",
	Short: "Send one test alert and exit",
	Long:  `Send a test message on the alert channel to check the bot token, chat and topic.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger(cmd)
		cfg, err := loadConfig(cmd, logger)
		if err != nil {
			return err
		}
		if err := newDispatcher(cfg, logger).Test(cmd.Context()); err != nil {
			return fmt.Errorf("test notification: %w (check bot token, chat_id and topic_id)", err)
		}
		fmt.Println("Test notification sent.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testNotifyCmd)
}
