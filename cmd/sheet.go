package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Merge cards from a spreadsheet into the collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		changed, err := env.orc.ImportSheet(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s: %d cards added or updated\n", args[0], changed)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Append the collection to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		written, err := env.orc.ExportSheet(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d rows to %s\n", written, args[0])
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge with the remote store and push the result now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.orc.SyncRemote(ctx); err != nil {
			return err
		}
		fmt.Printf("Synced %d cards\n", len(env.orc.Cards()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(syncCmd)
}
