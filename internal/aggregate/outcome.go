package aggregate

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/xxxbrian/surge-ruleset/internal/catalog"
	"github.com/xxxbrian/surge-ruleset/internal/ruleset"
)

// Status is the result tier of one source.
type Status int

const (
	// StatusWritten means at least one artifact file was written.
	StatusWritten Status = iota
	// StatusEmpty means the source had no actionable rules.
	StatusEmpty
	// StatusSkipped means the source could not be fetched or named.
	StatusSkipped
	// StatusFailed means the artifact could not be written.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusWritten:
		return "written"
	case StatusEmpty:
		return "empty"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Phase tells which source list an outcome belongs to.
type Phase string

const (
	PhasePrimary Phase = "primary"
	PhaseCustom  Phase = "custom"
)

// Outcome is the per-source result collected for the run summary.
type Outcome struct {
	Source  catalog.Entry
	Phase   Phase
	Status  Status
	Domains int
	CIDRs   int
	Stats   ruleset.Stats
	Err     error
}

// Report collects the outcomes of one run.
type Report struct {
	Started  time.Time
	Duration time.Duration
	Outcomes []Outcome
}

// Count returns the number of outcomes with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Totals returns the number of domain and CIDR entries written.
func (r *Report) Totals() (domains, cidrs int) {
	for _, o := range r.Outcomes {
		if o.Status == StatusWritten {
			domains += o.Domains
			cidrs += o.CIDRs
		}
	}
	return domains, cidrs
}

// Log writes the run summary line.
func (r *Report) Log(logger zerolog.Logger) {
	domains, cidrs := r.Totals()
	logger.Info().
		Int("sources", len(r.Outcomes)).
		Int("written", r.Count(StatusWritten)).
		Int("empty", r.Count(StatusEmpty)).
		Int("skipped", r.Count(StatusSkipped)).
		Int("failed", r.Count(StatusFailed)).
		Int("domains", domains).
		Int("cidrs", cidrs).
		Dur("duration", r.Duration).
		Msg("Aggregation finished")
}
