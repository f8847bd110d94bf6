package model

import (
	"time"

	"gorm.io/gorm"
)

type PassStatus string

const (
	PassSuccess PassStatus = "SUCCESS"
	PassFailed  PassStatus = "FAILED"
)

// Pass is the outcome of one full reconciliation of source against
// replica.
type Pass struct {
	gorm.Model
	Src        string     `gorm:"not null" json:"src"`
	Dst        string     `gorm:"not null" json:"dst"`
	Status     PassStatus `gorm:"not null;index" json:"status"`
	Created    int        `json:"created"`
	Copied     int        `json:"copied"`
	Deleted    int        `json:"deleted"`
	ErrMsg     string     `json:"error,omitempty"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt time.Time  `gorm:"not null;index" json:"finished_at"`

	Actions []Action `gorm:"-" json:"-"`
}

func NewPass(src, dst string, startedAt time.Time, actions []Action, err error) Pass {
	counts := CountActions(actions)
	p := Pass{
		Src:        src,
		Dst:        dst,
		Status:     PassSuccess,
		Created:    counts.Created,
		Copied:     counts.Copied,
		Deleted:    counts.Deleted,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Actions:    actions,
	}

	if err != nil {
		p.Status = PassFailed
		p.ErrMsg = err.Error()
	}

	return p
}

func (p Pass) Duration() time.Duration {
	return p.FinishedAt.Sub(p.StartedAt)
}
