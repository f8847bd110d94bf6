package model

import "time"

type SchedulerSnapshot struct {
	Src       string        `json:"src"`
	Dst       string        `json:"dst"`
	Interval  time.Duration `json:"interval"`
	StartedAt time.Time     `json:"started_at"`
	Passes    int           `json:"passes"`
	Failed    int           `json:"failed"`
	Running   bool          `json:"running"`
	LastPass  *Pass         `json:"last_pass"`
	// History covers every stored pass, nil while history is disabled.
	History *PassStats `json:"history,omitempty"`
}

type PassStats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}
