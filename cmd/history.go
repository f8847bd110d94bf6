package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"replisync/internal/model"

	"github.com/spf13/cobra"
)

var (
	historyN      int
	historyFailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent sync passes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := daemonURL("/history")
		if err != nil {
			return err
		}

		target := fmt.Sprintf("%s?n=%d", base, historyN)
		if historyFailed {
			target += "&failed=true"
		}

		resp, err := http.Get(target)
		if err != nil {
			return fmt.Errorf("replisync not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var passes []model.Pass
		if err := json.NewDecoder(resp.Body).Decode(&passes); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(passes) == 0 {
			fmt.Fprintln(out, "no history yet")
			return nil
		}

		for _, p := range passes {
			status := "✓"
			if p.Status == model.PassFailed {
				status = "✗"
			}

			fmt.Fprintf(out, "%s [%s] %s\n",
				status,
				p.FinishedAt.Format("2006-01-02 15:04:05"),
				formatPass(p),
			)
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of passes to show")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "show failed passes only")
	rootCmd.AddCommand(historyCmd)
}
