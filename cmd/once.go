package cmd

import (
	"fmt"
	"replisync/internal/logger"
	"replisync/internal/model"
	"replisync/internal/syncer"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var onceCmd = &cobra.Command{
	Use:   "once <source> <replica>",
	Short: "Run a single sync pass and exit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		src, dst := args[0], args[1]

		s := syncer.New(syncer.Options{
			Fs:          afero.NewOsFs(),
			Logger:      logger.Log,
			IgnoreList:  cfg.IgnoreList,
			Parallelism: cfg.Parallelism,
		})

		logger.Log.Info("sync started",
			zap.String("src", src),
			zap.String("dst", dst))

		actions, err := s.Sync(src, dst)
		counts := model.CountActions(actions)
		if err != nil {
			logger.Log.Error("sync failed",
				zap.Int("applied", counts.Total()),
				zap.Error(err))
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "done: %d created, %d copied, %d deleted\n",
			counts.Created, counts.Copied, counts.Deleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(onceCmd)
}
