package cmd

import (
	"fmt"
	"os"
	"replisync/internal/config"
	"replisync/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg   *config.Config
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "replisync <source> <replica> <interval_seconds> <log_file>",
	Short: "Keep a replica directory identical to a source directory",
	Long: "Runs a one-way sync pass every interval_seconds, making replica an exact\n" +
		"copy of source. Every pass is logged to the console and to log_file.",
	Args:         cobra.ExactArgs(4),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if err := logger.Init(debug, ""); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load()
		return err
	},
	RunE: runLoop,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) (string, error) {
	if cfg.StatusPort == 0 {
		return "", fmt.Errorf("status server is disabled, set status_port in the config")
	}

	return fmt.Sprintf("http://localhost:%d%s", cfg.StatusPort, path), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	// flags must precede the positional args so a negative interval
	// reaches interval validation instead of the flag parser
	rootCmd.Flags().SetInterspersed(false)
}
