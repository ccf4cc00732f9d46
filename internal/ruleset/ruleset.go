// Package ruleset accumulates classified rules from one source into a
// deduplicated, sorted domain list and CIDR list.
package ruleset

import (
	"iter"
	"maps"
	"slices"

	"github.com/rs/zerolog"

	"github.com/xxxbrian/surge-ruleset/internal/rule"
)

// RuleSet is the normalized result for one source.
// Both slices are unique and sorted ascending.
type RuleSet struct {
	Domains []string
	CIDRs   []string
}

// Empty reports whether the rule set has no actionable entries.
func (rs RuleSet) Empty() bool {
	return len(rs.Domains) == 0 && len(rs.CIDRs) == 0
}

// Stats counts what an Accumulator saw and dropped.
type Stats struct {
	Lines        int
	Keywords     int
	Unrecognized int
	InvalidCIDRs int
}

// Dropped returns the number of classified lines that contributed nothing.
func (s Stats) Dropped() int {
	return s.Keywords + s.Unrecognized + s.InvalidCIDRs
}

// Accumulator collects rules into sets. It is not safe for concurrent use;
// each source gets its own.
type Accumulator struct {
	domains map[string]struct{}
	cidrs   map[string]struct{}
	stats   Stats
	logger  zerolog.Logger
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator(logger zerolog.Logger) *Accumulator {
	return &Accumulator{
		domains: make(map[string]struct{}),
		cidrs:   make(map[string]struct{}),
		logger:  logger,
	}
}

// AddLine classifies a raw line and adds the result.
func (a *Accumulator) AddLine(line string) {
	r, ok := rule.Classify(line)
	if !ok {
		return
	}
	a.Add(r)
}

// Add adds one classified rule.
func (a *Accumulator) Add(r rule.Rule) {
	a.stats.Lines++

	switch {
	case r.IsDomain():
		a.domains[r.DomainEntry()] = struct{}{}
	case r.IsCIDR():
		cidr, err := rule.NormalizeCIDR(r.Value)
		if err != nil {
			a.stats.InvalidCIDRs++
			a.logger.Trace().Str("kind", r.Kind.String()).Str("value", r.Value).Msg("Dropping invalid IP literal")
			return
		}
		a.cidrs[cidr] = struct{}{}
	case r.Kind == rule.DomainKeyword:
		a.stats.Keywords++
	default:
		a.stats.Unrecognized++
	}
}

// Stats returns the counters collected so far.
func (a *Accumulator) Stats() Stats {
	return a.stats
}

// RuleSet returns the sorted contents of the accumulator.
func (a *Accumulator) RuleSet() RuleSet {
	return RuleSet{
		Domains: slices.Sorted(maps.Keys(a.domains)),
		CIDRs:   slices.Sorted(maps.Keys(a.cidrs)),
	}
}

// Build runs every line through a fresh Accumulator.
func Build(lines iter.Seq[string], logger zerolog.Logger) (RuleSet, Stats) {
	acc := NewAccumulator(logger)
	for line := range lines {
		acc.AddLine(line)
	}
	return acc.RuleSet(), acc.Stats()
}
