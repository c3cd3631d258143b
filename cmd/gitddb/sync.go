package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle against the configured remote",
	Long: `Sync runs a single fetch/classify/resolve/push cycle (requires
--remote) and prints what it did: a plain push, a fast-forward merge, a
merge (with or without conflicts) followed by a push, or a database
combine when local and remote share no history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, closer, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer closer()

		result, err := db.Sync(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("sync: %s (%d commits, %d conflicts, %d duplicates)\n",
			result.Kind, len(result.Commits), len(result.Conflicts), len(result.Duplicates))
		for _, c := range result.Conflicts {
			fmt.Printf("  conflict: %s resolved via %s\n", c.FatDoc.ID, c.Strategy)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
