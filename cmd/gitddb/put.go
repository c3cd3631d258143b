package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/gitddb/gitddb/internal/canon"
)

var putSetFields []string
var putFile string

var putCmd = &cobra.Command{
	Use:   "put <id> [json]",
	Short: "Create or replace a document",
	Long: `Put writes a document under the given id, serialized with the
database's configured storage encoding, as one commit.

The document body can come from the second positional argument, from
--file, or be built up from scratch with repeated --set path=value flags
(applied with github.com/tidwall/sjson before the result is parsed and
re-serialized canonically for storage).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		raw := []byte("{}")
		switch {
		case putFile != "":
			data, err := os.ReadFile(putFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", putFile, err)
			}
			raw = data
		case len(args) == 2:
			raw = []byte(args[1])
		}

		for _, kv := range putSetFields {
			path, value, ok := splitSetFlag(kv)
			if !ok {
				return fmt.Errorf("--set must be path=value, got %q", kv)
			}
			patched, err := sjson.SetBytes(raw, path, value)
			if err != nil {
				return fmt.Errorf("--set %s: %w", kv, err)
			}
			raw = patched
		}

		parsed, err := canon.Parse(raw)
		if err != nil {
			return fmt.Errorf("document is not valid JSON: %w", err)
		}
		value, ok := parsed.(map[string]any)
		if !ok {
			return fmt.Errorf("document must be a JSON object")
		}

		db, closer, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer closer()

		ext, _ := cmd.Flags().GetString("ext")
		result, err := db.Put(context.Background(), id, value, ext)
		if err != nil {
			return err
		}
		fmt.Printf("put %s (%s)\n", result.Name, result.CommitOid)
		return nil
	},
}

func splitSetFlag(kv string) (path, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func init() {
	putCmd.Flags().StringVar(&putFile, "file", "", "read the document body from a file")
	putCmd.Flags().StringArrayVar(&putSetFields, "set", nil, "patch one field before storing, path=value (repeatable)")
	putCmd.Flags().String("ext", "", "storage extension override (.json, .md, .yml)")
	rootCmd.AddCommand(putCmd)
}
