package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitddb/gitddb/internal/history"
)

var historyAuthor string
var historyCommitter string

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "List a document's revisions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, closer, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer closer()

		ext, _ := cmd.Flags().GetString("ext")
		filter := history.Filter{Author: historyAuthor, Committer: historyCommitter}
		entries, err := db.History(context.Background(), args[0], ext, filter)
		if err != nil {
			return err
		}
		for _, e := range entries {
			value, _ := json.Marshal(e.Value)
			fmt.Printf("%s  %s  %s  %s\n", e.Commit.OID[:12], e.Commit.Author.Name, e.Commit.Message, value)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyAuthor, "author", "", "only show revisions by this author")
	historyCmd.Flags().StringVar(&historyCommitter, "committer", "", "only show revisions by this committer")
	historyCmd.Flags().String("ext", "", "storage extension override (.json, .md, .yml)")
	rootCmd.AddCommand(historyCmd)
}
