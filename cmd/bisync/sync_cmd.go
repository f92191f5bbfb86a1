package main

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client"
	"github.com/AzPepoze/gdrive-bisync/internal/client/status"
	"github.com/AzPepoze/gdrive-bisync/internal/client/sync"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one full sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			closeLogs, err := setupLogging(cfg.LogDir, true, verbose(cmd))
			if err != nil {
				return err
			}
			defer closeLogs()

			c, err := client.New(cmd.Context(), cfg, status.NewLogReporter(slog.Default()))
			if err != nil {
				return err
			}

			report, err := c.SyncOnce(cmd.Context())
			if report != nil {
				printReport(cmd, report)
			}
			return err
		},
	}
}

func printReport(cmd *cobra.Command, r *sync.CycleReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "local %d, remote %d, folders created %d, took %s\n",
		r.LocalEntries, r.RemoteEntries, r.FoldersCreated, r.Duration.Round(time.Millisecond))

	actions := make([]sync.SyncAction, 0, len(r.Actions))
	for a := range r.Actions {
		actions = append(actions, a)
	}
	slices.Sort(actions)
	for _, a := range actions {
		fmt.Fprintf(out, "  %-16s %d\n", a, r.Actions[a])
	}
	if r.Failed > 0 {
		fmt.Fprintf(out, "%d task(s) failed\n", r.Failed)
	}
}
