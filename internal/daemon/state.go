package daemon

import (
	"sync"
	"replisync/internal/model"
	"time"
)

type State struct {
	mu        sync.RWMutex
	src       string
	dst       string
	interval  time.Duration
	startedAt time.Time
	passes    int
	failed    int
	running   bool
	lastPass  *model.Pass
}

func NewState(src, dst string, interval time.Duration) *State {
	return &State{
		src:       src,
		dst:       dst,
		interval:  interval,
		startedAt: time.Now(),
	}
}

func (s *State) RecordPass(pass model.Pass) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passes++
	if pass.Status == model.PassFailed {
		s.failed++
	}

	pass.Actions = nil
	s.lastPass = &pass
}

func (s *State) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

func (s *State) Snapshot() model.SchedulerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := model.SchedulerSnapshot{
		Src:       s.src,
		Dst:       s.dst,
		Interval:  s.interval,
		StartedAt: s.startedAt,
		Passes:    s.passes,
		Failed:    s.failed,
		Running:   s.running,
	}

	if s.lastPass != nil {
		last := *s.lastPass
		snap.LastPass = &last
	}

	return snap
}
