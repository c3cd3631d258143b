package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a document",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, closer, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer closer()

		ext, _ := cmd.Flags().GetString("ext")
		result, err := db.Delete(context.Background(), args[0], ext)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %s (%s)\n", result.Name, result.CommitOid)
		return nil
	},
}

func init() {
	deleteCmd.Flags().String("ext", "", "storage extension override (.json, .md, .yml)")
	rootCmd.AddCommand(deleteCmd)
}
