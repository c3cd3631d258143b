package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitddb/gitddb/internal/syncengine"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep a live sync binding running until interrupted",
	Long: `Watch opens the database with live sync enabled: the scheduler
fires on --interval, the local file watcher triggers an eager sync on
every write directly inside the database directory (subdirectories are
not watched), and every sync event is
printed as it happens. Requires --remote.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, closer, err := openDatabaseLive(cmd, true)
		if err != nil {
			return err
		}
		defer closer()

		db.OnSyncEvent(func(ev syncengine.Event) {
			switch ev.Kind {
			case syncengine.EventError:
				fmt.Printf("[%s] error: %v\n", ev.Kind, ev.Err)
			case syncengine.EventComplete:
				fmt.Printf("[%s] %s\n", ev.Kind, ev.Result.Kind)
			default:
				fmt.Printf("[%s]\n", ev.Kind)
			}
		})

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		fmt.Println("watching, press ctrl-c to stop")
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
