package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/slabworks/gradepipe/internal/model"
)

// reviewRunE wraps the shared shape of the one-shot transition commands:
// resolve the card, apply the transition, run the pipeline until the card
// settles, print the result.
func reviewRunE(apply func(ctx context.Context, env *appEnv, id string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := requireAnalysis(); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		id, err := resolveCardID(env.orc.Cards(), args[0])
		if err != nil {
			return err
		}

		if err := apply(ctx, env, id); err != nil {
			return err
		}

		settled, err := runUntilSettled(ctx, env, id)
		if err != nil {
			return err
		}
		formatCard(os.Stdout, settled)
		return nil
	}
}

var acceptCmd = &cobra.Command{
	Use:   "accept <card-id>",
	Short: "Accept the proposed grade and finish enrichment",
	Args:  cobra.ExactArgs(1),
	RunE: reviewRunE(func(ctx context.Context, env *appEnv, id string) error {
		_, err := env.orc.Accept(ctx, id)
		return err
	}),
}

var (
	challengeHigher bool
	challengeLower  bool
)

var challengeCmd = &cobra.Command{
	Use:   "challenge <card-id>",
	Short: "Dispute the proposed grade and trigger a re-grade",
	Args:  cobra.ExactArgs(1),
	RunE: reviewRunE(func(ctx context.Context, env *appEnv, id string) error {
		var direction model.Direction
		switch {
		case challengeHigher && challengeLower:
			return eris.New("pick one of --higher or --lower")
		case challengeHigher:
			direction = model.DirectionHigher
		case challengeLower:
			direction = model.DirectionLower
		default:
			return eris.New("challenge requires --higher or --lower")
		}
		_, err := env.orc.Challenge(ctx, id, direction)
		return err
	}),
}

var (
	overrideGrade float64
	overrideLabel string
)

var overrideCmd = &cobra.Command{
	Use:   "override <card-id>",
	Short: "Set your own grade and regenerate the summary around it",
	Args:  cobra.ExactArgs(1),
	RunE: reviewRunE(func(ctx context.Context, env *appEnv, id string) error {
		if overrideGrade <= 0 || overrideGrade > 10 {
			return eris.New("--grade must be between 0.5 and 10")
		}
		_, err := env.orc.Override(ctx, id, overrideGrade, overrideLabel)
		return err
	}),
}

var retryCmd = &cobra.Command{
	Use:   "retry <card-id>",
	Short: "Re-run grading on a failed card",
	Args:  cobra.ExactArgs(1),
	RunE: reviewRunE(func(ctx context.Context, env *appEnv, id string) error {
		_, err := env.orc.Retry(ctx, id)
		return err
	}),
}

var revalueCmd = &cobra.Command{
	Use:   "revalue <card-id>",
	Short: "Refresh the market valuation of a reviewed card",
	Args:  cobra.ExactArgs(1),
	RunE: reviewRunE(func(ctx context.Context, env *appEnv, id string) error {
		_, err := env.orc.Revalue(ctx, id)
		return err
	}),
}

func init() {
	challengeCmd.Flags().BoolVar(&challengeHigher, "higher", false, "argue the grade is too low")
	challengeCmd.Flags().BoolVar(&challengeLower, "lower", false, "argue the grade is too high")
	overrideCmd.Flags().Float64Var(&overrideGrade, "grade", 0, "overall grade (0.5-10)")
	overrideCmd.Flags().StringVar(&overrideLabel, "label", "", "grade label (e.g. \"MINT 9\")")
	_ = overrideCmd.MarkFlagRequired("grade")

	rootCmd.AddCommand(acceptCmd)
	rootCmd.AddCommand(challengeCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(revalueCmd)
}
