package main

import (
	"fmt"
	"io"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client"
	"github.com/AzPepoze/gdrive-bisync/internal/client/handlers"
	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running bisync through its control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			url, _ := cmd.Flags().GetString("url")
			if url == "" {
				if url, err = client.ControlPlaneURL(cfg.HTTP.Addr); err != nil {
					return err
				}
			}
			raw, _ := cmd.Flags().GetBool("json")

			httpc := req.C().SetTimeout(5 * time.Second)
			if cfg.HTTP.Token != "" {
				httpc.SetCommonBearerAuthToken(cfg.HTTP.Token)
			}

			var status handlers.StatusResponse
			var apiErr handlers.ControlPlaneError
			resp, err := httpc.R().
				SetContext(cmd.Context()).
				SetSuccessResult(&status).
				SetErrorResult(&apiErr).
				Get(url + "/v1/status")
			if err != nil {
				return fmt.Errorf("control plane unreachable at %s: %w", url, err)
			}
			if resp.IsErrorState() {
				return fmt.Errorf("control plane: %s %s", resp.Status, apiErr.Error)
			}

			if raw {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.String())
				return err
			}
			printStatus(cmd.OutOrStdout(), &status)
			return nil
		},
	}
	cmd.Flags().String("url", "", "control plane URL, defaults to http.addr")
	cmd.Flags().Bool("json", false, "print the raw JSON response")
	return cmd
}

func printStatus(w io.Writer, s *handlers.StatusResponse) {
	fmt.Fprintf(w, "bisync %s (%s)\n", s.Version, s.Revision)
	if rt := s.Runtime; rt != nil {
		fmt.Fprintf(w, "pid %d, up %s, mem %s\n", rt.PID, rt.Uptime, humanize.IBytes(rt.MemRSS))
	}

	si := s.Sync
	if si == nil {
		fmt.Fprintln(w, "sync engine not ready")
		return
	}

	switch {
	case si.Running:
		fmt.Fprintln(w, "state: syncing")
	case si.NextCycleAt != nil:
		fmt.Fprintf(w, "state: idle, next cycle %s\n", humanize.Time(*si.NextCycleAt))
	default:
		fmt.Fprintln(w, "state: idle")
	}
	fmt.Fprintf(w, "in flight %d, errors %d, conflicts %d\n", si.Syncing, si.Errors, si.Conflicted)

	if last := si.LastCycle; last != nil {
		fmt.Fprintf(w, "last cycle %s: %d task(s), %d failed, took %s\n",
			humanize.Time(last.StartedAt), last.Tasks(), last.Failed, last.Duration.Round(time.Millisecond))
	}
}
