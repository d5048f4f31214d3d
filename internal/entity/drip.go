package entity

import (
	"database/sql"
	"time"
)

// DripRun is the leased marker guarding one drip campaign run.
type DripRun struct {
	RunKey     string         `db:"run_key" json:"runKey"`
	Owner      string         `db:"owner" json:"owner"`
	LeaseUntil time.Time      `db:"lease_until" json:"leaseUntil"`
	StartedAt  time.Time      `db:"started_at" json:"startedAt"`
	FinishedAt sql.NullTime   `db:"finished_at" json:"-"`
	Sent       int            `db:"sent" json:"sent"`
	Failed     int            `db:"failed" json:"failed"`
	Error      sql.NullString `db:"error_msg" json:"-"`
}

// DripTypeSummary aggregates the outcome of one email type batch.
type DripTypeSummary struct {
	EmailType    EmailType           `json:"emailType"`
	Eligible     int                 `json:"eligible"`
	Sent         int                 `json:"sent"`
	Failed       int                 `json:"failed"`
	FailedByKind map[FailureKind]int `json:"failedByKind,omitempty"`
}

// DripRunSummary aggregates a whole drip run.
type DripRunSummary struct {
	RunKey     string            `json:"runKey"`
	StartedAt  time.Time         `json:"startedAt"`
	Duration   time.Duration     `json:"duration"`
	Reconciled int               `json:"reconciled"`
	Types      []DripTypeSummary `json:"types"`
	Sent       int               `json:"sent"`
	Failed     int               `json:"failed"`
}

// Add folds a type summary into the run totals.
func (s *DripRunSummary) Add(ts DripTypeSummary) {
	s.Types = append(s.Types, ts)
	s.Sent += ts.Sent
	s.Failed += ts.Failed
}
