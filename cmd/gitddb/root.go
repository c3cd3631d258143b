package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitddb/gitddb/internal/config"
	"github.com/gitddb/gitddb/internal/database"
	"github.com/gitddb/gitddb/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "gitddb",
	Short: "A git-backed JSON document database",
	Long: `gitddb stores JSON documents as git blobs, one commit per mutation,
and syncs them with a remote using a three-way merge and operational
transformation instead of conflict markers.

This binary is a thin exerciser of the gitddb library: put/get/delete a
document, run a sync, or watch a directory for live sync.`,
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "local database directory")
	rootCmd.PersistentFlags().String("db", "gitddb", "database name")
	rootCmd.PersistentFlags().String("serialize", "json", "storage encoding: json or front-matter")
	rootCmd.PersistentFlags().String("remote", "", "sync remote URL (enables sync)")
	rootCmd.PersistentFlags().String("token", "", "access token for http(s) remotes")
	rootCmd.PersistentFlags().String("branch", "main", "sync branch")
	rootCmd.PersistentFlags().String("direction", "both", "sync direction: push, pull, or both")
	rootCmd.PersistentFlags().Duration("interval", 5*time.Second, "live sync interval")
	rootCmd.PersistentFlags().Duration("retry-interval", 500*time.Millisecond, "live sync retry interval")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug-level logging")
}

// openDatabase builds config.Options from persistent flags and opens the
// database for the duration of one command invocation.
func openDatabase(cmd *cobra.Command) (*database.Database, func(), error) {
	return openDatabaseLive(cmd, false)
}

// openDatabaseLive is openDatabase with live sync optionally enabled, for
// the watch command.
func openDatabaseLive(cmd *cobra.Command, live bool) (*database.Database, func(), error) {
	dir, _ := cmd.Flags().GetString("dir")
	dbName, _ := cmd.Flags().GetString("db")
	serialize, _ := cmd.Flags().GetString("serialize")
	remote, _ := cmd.Flags().GetString("remote")
	token, _ := cmd.Flags().GetString("token")
	branch, _ := cmd.Flags().GetString("branch")
	direction, _ := cmd.Flags().GetString("direction")
	interval, _ := cmd.Flags().GetDuration("interval")
	retryInterval, _ := cmd.Flags().GetDuration("retry-interval")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := logging.InfoLevel
	if verbose {
		level = logging.DebugLevel
	}
	log := logging.New(logging.Config{Level: level})

	opts := &config.Options{
		DbName:    dbName,
		LocalDir:  dir,
		Serialize: config.SerializeFormat(serialize),
	}
	if remote != "" {
		opts.Sync = &config.SyncOptions{
			RemoteURL:     remote,
			AccessToken:   token,
			Branch:        branch,
			Direction:     config.SyncDirection(direction),
			Live:          live,
			Interval:      interval,
			RetryInterval: retryInterval,
		}
	}

	ctx := context.Background()
	db, err := database.Open(ctx, opts, log, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closer := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Close(closeCtx)
	}
	return db, closer, nil
}
