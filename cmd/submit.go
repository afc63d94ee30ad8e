package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var submitNoWait bool

var submitCmd = &cobra.Command{
	Use:   "submit <front-image> [back-image]",
	Short: "Submit a card's photos for grading",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !submitNoWait {
			if err := requireAnalysis(); err != nil {
				return err
			}
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		back := ""
		if len(args) == 2 {
			back = args[1]
		}

		card, err := env.orc.Submit(ctx, args[0], back)
		if err != nil {
			return err
		}

		if submitNoWait {
			fmt.Printf("Submitted %s (grading deferred until watch or serve runs)\n", truncateID(card.ID))
			return nil
		}

		fmt.Printf("Submitted %s, grading...\n", truncateID(card.ID))
		settled, err := runUntilSettled(ctx, env, card.ID)
		if err != nil {
			return err
		}
		formatCard(os.Stdout, settled)
		return nil
	},
}

func init() {
	submitCmd.Flags().BoolVar(&submitNoWait, "no-wait", false, "enqueue without waiting for grading to finish")
	rootCmd.AddCommand(submitCmd)
}
