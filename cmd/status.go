package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"replisync/internal/model"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View the status of the running sync loop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := daemonURL("/status")
		if err != nil {
			return err
		}

		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("replisync not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var snap model.SchedulerSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "src:      %s\n", snap.Src)
		fmt.Fprintf(out, "dst:      %s\n", snap.Dst)
		fmt.Fprintf(out, "interval: %s\n", snap.Interval)
		fmt.Fprintf(out, "uptime:   %s\n", time.Since(snap.StartedAt).Round(time.Second))
		fmt.Fprintf(out, "passes:   %d (%d failed)\n", snap.Passes, snap.Failed)

		if snap.History != nil {
			fmt.Fprintf(out, "history:  %d stored (%d failed)\n", snap.History.Total, snap.History.Failed)
		}

		if snap.Running {
			fmt.Fprintln(out, "state:    syncing")
		} else {
			fmt.Fprintln(out, "state:    waiting")
		}

		if snap.LastPass != nil {
			fmt.Fprintf(out, "last:     %s %s\n",
				snap.LastPass.FinishedAt.Format("2006-01-02 15:04:05"), formatPass(*snap.LastPass))
		}

		return nil
	},
}

func formatPass(p model.Pass) string {
	if p.Status == model.PassFailed {
		return fmt.Sprintf("FAILED in %s: %s", p.Duration().Round(time.Millisecond), p.ErrMsg)
	}

	return fmt.Sprintf("ok in %s: %d created, %d copied, %d deleted",
		p.Duration().Round(time.Millisecond), p.Created, p.Copied, p.Deleted)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
