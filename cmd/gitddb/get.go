package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/gitddb/gitddb/internal/canon"
)

var getField string

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Read a document",
	Long: `Get prints a document's current value as JSON.

--field extracts a single dotted path with github.com/tidwall/gjson instead
of printing the whole document.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, closer, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer closer()

		ext, _ := cmd.Flags().GetString("ext")
		doc, err := db.Get(context.Background(), args[0], ext)
		if err != nil {
			return err
		}

		data, err := canon.Serialize(doc.Doc.Value)
		if err != nil {
			return err
		}

		if getField != "" {
			result := gjson.GetBytes(data, getField)
			if !result.Exists() {
				return fmt.Errorf("field %q not present in %s", getField, args[0])
			}
			fmt.Println(result.String())
			return nil
		}

		var pretty map[string]any
		if err := json.Unmarshal(data, &pretty); err != nil {
			return err
		}
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getField, "field", "", "extract a single dotted path instead of the whole document")
	getCmd.Flags().String("ext", "", "storage extension override (.json, .md, .yml)")
	rootCmd.AddCommand(getCmd)
}
