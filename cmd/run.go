package cmd

import (
	"context"
	"os"
	"os/signal"
	"replisync/internal/config"
	"replisync/internal/daemon"
	"replisync/internal/db"
	"replisync/internal/logger"
	"replisync/internal/repository"
	"replisync/internal/syncer"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runLoop(cmd *cobra.Command, args []string) error {
	src, dst, rawInterval, logFile := args[0], args[1], args[2], args[3]

	// validated before the log file is touched or any pass is attempted
	interval, err := config.ParseInterval(rawInterval)
	if err != nil {
		logger.Log.Error("invalid configuration", zap.Error(err))
		return err
	}

	if err := logger.Init(debug, logFile); err != nil {
		return err
	}
	defer logger.Sync()

	var recorder daemon.Recorder
	if cfg.DBPath != "" {
		if err := db.Init(cfg.DBPath); err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		recorder = repository.NewPassRepository()
	}

	s := syncer.New(syncer.Options{
		Fs:          afero.NewOsFs(),
		Logger:      logger.Log,
		IgnoreList:  cfg.IgnoreList,
		Parallelism: cfg.Parallelism,
	})

	sched := daemon.NewScheduler(daemon.Options{
		Syncer:   s,
		Src:      src,
		Dst:      dst,
		Interval: interval,
		Logger:   logger.Log,
		Recorder: recorder,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StatusPort != 0 {
		srv := daemon.NewServer(sched.State(), repository.NewPassRepository(), cfg.StatusPort, logger.Log)
		srv.Start()

		go func() {
			select {
			case <-srv.StopCh():
				logger.Log.Info("stop requested via API")
				stop()
			case <-ctx.Done():
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	logger.Log.Info("replisync started",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.Duration("interval", interval),
		zap.String("log_file", logFile),
		zap.Int("pid", os.Getpid()))

	return sched.Run(ctx)
}
