package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slabworks/gradepipe/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gradepipe",
	Short: "Trading card grading pipeline",
	Long:  "Grades trading cards from photos via a vision model, walks them through review, summary, and valuation, and syncs the collection across local and remote stores.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
