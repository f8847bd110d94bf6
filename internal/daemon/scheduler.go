package daemon

import (
	"context"
	"fmt"
	"sync"
	"replisync/internal/model"
	"time"

	"go.uber.org/zap"
)

type Syncer interface {
	Sync(source, replica string) ([]model.Action, error)
}

type Recorder interface {
	Save(pass model.Pass) error
}

type Options struct {
	Syncer   Syncer
	Src      string
	Dst      string
	Interval time.Duration
	Logger   *zap.Logger
	// Recorder persists finished passes. Nil disables persistence.
	Recorder Recorder
}

// Scheduler runs one pass after another, waiting Interval between the
// end of one pass and the start of the next.
type Scheduler struct {
	syncer   Syncer
	src      string
	dst      string
	interval time.Duration
	log      *zap.Logger
	recorder Recorder
	state    *State

	// held for the duration of a pass so passes never overlap
	passMu sync.Mutex
}

func NewScheduler(opts Options) *Scheduler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Scheduler{
		syncer:   opts.Syncer,
		src:      opts.Src,
		dst:      opts.Dst,
		interval: opts.Interval,
		log:      log,
		recorder: opts.Recorder,
		state:    NewState(opts.Src, opts.Dst, opts.Interval),
	}
}

func (s *Scheduler) State() *State {
	return s.state
}

// RunOnce performs a single pass. A failure is logged and recorded, it
// is never returned.
func (s *Scheduler) RunOnce() model.Pass {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	s.state.SetRunning(true)
	defer s.state.SetRunning(false)

	startedAt := time.Now()
	s.log.Info("sync started",
		zap.String("src", s.src),
		zap.String("dst", s.dst))

	actions, err := s.sync()
	pass := model.NewPass(s.src, s.dst, startedAt, actions, err)

	if err != nil {
		s.log.Error("sync failed",
			zap.Int("applied", len(actions)),
			zap.Duration("elapsed", pass.Duration()),
			zap.Error(err))
	} else {
		s.log.Info("sync completed",
			zap.Int("created", pass.Created),
			zap.Int("copied", pass.Copied),
			zap.Int("deleted", pass.Deleted),
			zap.Duration("elapsed", pass.Duration()))
	}

	s.state.RecordPass(pass)

	if s.recorder != nil {
		if err := s.recorder.Save(pass); err != nil {
			s.log.Warn("failed to save history",
				zap.Error(err))
		}
	}

	return pass
}

func (s *Scheduler) sync() (actions []model.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during sync: %v", r)
		}
	}()

	return s.syncer.Sync(s.src, s.dst)
}

// Run repeats passes until ctx is cancelled. Cancellation is observed
// between passes only.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}

		// select picks at random when both are ready
		if ctx.Err() != nil {
			s.log.Info("scheduler stopped")
			return nil
		}

		s.RunOnce()
		timer.Reset(s.interval)
	}
}
