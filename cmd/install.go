package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"replisync/internal/autostart"
	"replisync/internal/config"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <source> <replica> <interval_seconds> <log_file>",
	Short: "Register the sync loop to start on login",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.ParseInterval(args[2]); err != nil {
			return err
		}

		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		// the service does not start in the current working directory
		loopArgs := make([]string, len(args))
		copy(loopArgs, args)
		for _, i := range []int{0, 1, 3} {
			abs, err := filepath.Abs(loopArgs[i])
			if err != nil {
				return fmt.Errorf("invalid path %s: %w", loopArgs[i], err)
			}
			loopArgs[i] = abs
		}

		as := autostart.New()
		if err := as.Install(execPath, loopArgs); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "replisync registered for autostart")
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the autostart registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		as := autostart.New()

		installed, err := as.IsInstalled()
		if err != nil {
			return err
		}
		if !installed {
			fmt.Fprintln(cmd.OutOrStdout(), "replisync is not registered for autostart")
			return nil
		}

		if err := as.Uninstall(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "replisync autostart removed")
		return nil
	},
}

func init() {
	installCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}
