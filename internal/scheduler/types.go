// Package scheduler runs poll cycles: on a fixed interval, at startup, and on
// demand. One cycle lists the active sites and evaluates all of them
// concurrently, isolating each site's failure from the others.
package scheduler

import (
	"time"

	"clearskies/internal/holds"
	"clearskies/internal/types"
)

// StartOptions configures the timer loop.
type StartOptions struct {
	Interval time.Duration
	// RunImmediately fires one cycle at start, before the first tick.
	RunImmediately bool
}

// SiteResult is one site's outcome within a cycle.
type SiteResult struct {
	SiteID     string           `json:"site_id"`
	SiteName   string           `json:"site_name"`
	Transition holds.Transition `json:"transition"`
	// Skipped is set when the weather fetch failed and the site was not evaluated.
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CycleReport summarizes a completed poll cycle.
type CycleReport struct {
	CycleID    string             `json:"cycle_id"`
	Trigger    types.CycleTrigger `json:"trigger"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Sites      int                `json:"sites"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	Opened     int                `json:"opened"`
	Cleared    int                `json:"cleared"`
	// ListError is set when the active site list could not be read; no site
	// was evaluated in that case.
	ListError string       `json:"list_error,omitempty"`
	Results   []SiteResult `json:"results,omitempty"`
}

// Duration returns how long the cycle ran.
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
