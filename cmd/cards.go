package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slabworks/gradepipe/internal/model"
)

var cardsStatus string

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "List the collection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		cards := env.orc.Cards()
		if cardsStatus != "" {
			filtered := cards[:0]
			for _, c := range cards {
				if c.Status == model.Status(cardsStatus) {
					filtered = append(filtered, c)
				}
			}
			cards = filtered
		}

		if len(cards) == 0 {
			fmt.Fprintln(os.Stderr, "No cards found.")
			return nil
		}

		formatCardsList(os.Stdout, cards)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <card-id>",
	Short: "Show full details of a card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		id, err := resolveCardID(env.orc.Cards(), args[0])
		if err != nil {
			return err
		}

		card, _ := env.orc.Card(id)
		formatCard(os.Stdout, card)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <card-id>",
	Short: "Remove a card from the collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		id, err := resolveCardID(env.orc.Cards(), args[0])
		if err != nil {
			return err
		}

		if err := env.orc.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", truncateID(id))
		return nil
	},
}

func init() {
	cardsCmd.Flags().StringVar(&cardsStatus, "status", "", "filter by status (grading, needs_review, reviewed, ...)")
	rootCmd.AddCommand(cardsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
}
