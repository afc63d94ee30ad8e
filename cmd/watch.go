package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the enrichment pipeline until interrupted",
	Long:  "Keeps the scheduler running so submitted and recovered cards are enriched as they arrive. Stop with Ctrl-C; pending saves are flushed on the way out.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireAnalysis(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		env.orc.Start(ctx)
		fmt.Printf("Watching %d cards, Ctrl-C to stop\n", len(env.orc.Cards()))

		ch, unsubscribe := env.orc.Subscribe()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				zap.L().Info("shutting down watch")
				return nil
			case <-ch:
				logPipelineCounts(env)
			}
		}
	},
}

func logPipelineCounts(env *appEnv) {
	counts := map[string]int{}
	for _, c := range env.orc.Cards() {
		counts[string(c.Status)]++
	}
	zap.L().Debug("collection changed", zap.Any("statuses", counts))
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
