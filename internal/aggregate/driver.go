// Package aggregate drives every discovered source through fetch, adapt,
// classify and write.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xxxbrian/surge-ruleset/internal/catalog"
	"github.com/xxxbrian/surge-ruleset/internal/logging"
	"github.com/xxxbrian/surge-ruleset/internal/metrics"
	"github.com/xxxbrian/surge-ruleset/internal/output"
	"github.com/xxxbrian/surge-ruleset/internal/ruleset"
	"github.com/xxxbrian/surge-ruleset/internal/source"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 10

// ErrDiscovery is returned when a source listing cannot be obtained. It is
// the only error that aborts a run.
var ErrDiscovery = errors.New("source discovery failed")

// ErrDuplicateName marks a source skipped because an earlier source in the
// same phase already claimed its name, and with it the artifact paths.
var ErrDuplicateName = errors.New("duplicate source name")

// Fetcher retrieves a source document.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Options configures a Driver.
type Options struct {
	Workers int
	Metrics *metrics.Recorder
	Logger  zerolog.Logger
}

// Driver runs aggregation passes. A Driver may be reused across runs but
// not for concurrent runs over the same output tree.
type Driver struct {
	fetcher Fetcher
	writer  *output.Writer
	workers int
	metrics *metrics.Recorder
	logger  zerolog.Logger
}

// NewDriver creates a Driver writing below w.
func NewDriver(f Fetcher, w *output.Writer, opts Options) *Driver {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRecorder()
	}
	return &Driver{
		fetcher: f,
		writer:  w,
		workers: opts.Workers,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Discover lists sources, wrapping any failure in ErrDiscovery.
func Discover(ctx context.Context, l catalog.Lister) ([]catalog.Entry, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	return entries, nil
}

// Run processes the primary sources on the worker pool, then the custom
// sources sequentially once the pool has drained. custom may be nil.
// Per-source failures are reported in the Report, never as the error.
func (d *Driver) Run(ctx context.Context, primary, custom catalog.Lister) (*Report, error) {
	report := &Report{Started: time.Now()}
	defer func() { report.Duration = time.Since(report.Started) }()

	entries, err := Discover(ctx, primary)
	if err != nil {
		return report, err
	}
	d.logger.Info().Int("sources", len(entries)).Int("workers", d.workers).Msg("Discovered sources")

	// Each worker owns one slot and one artifact path; no locking needed.
	outcomes := make([]Outcome, len(entries))
	claimed := make(map[string]struct{}, len(entries))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, entry := range entries {
		if _, dup := claimed[entry.Name]; dup {
			outcomes[i] = d.duplicate(entry, PhasePrimary)
			continue
		}
		claimed[entry.Name] = struct{}{}
		g.Go(func() error {
			outcomes[i] = d.process(ctx, entry, PhasePrimary)
			return nil
		})
	}
	_ = g.Wait()
	report.Outcomes = outcomes

	if custom != nil {
		customEntries, err := Discover(ctx, custom)
		if err != nil {
			return report, err
		}
		claimed := make(map[string]struct{}, len(customEntries))
		for _, entry := range customEntries {
			if _, dup := claimed[entry.Name]; dup {
				report.Outcomes = append(report.Outcomes, d.duplicate(entry, PhaseCustom))
				continue
			}
			claimed[entry.Name] = struct{}{}
			report.Outcomes = append(report.Outcomes, d.process(ctx, entry, PhaseCustom))
		}
	}

	d.metrics.RunCompleted(time.Now())
	return report, nil
}

func (d *Driver) process(ctx context.Context, entry catalog.Entry, phase Phase) Outcome {
	out := Outcome{Source: entry, Phase: phase}
	logger := d.logger.With().Str("source", entry.Name).Str("phase", string(phase)).Logger()
	defer d.record(&out)

	artifact, err := d.artifact(entry.Name, phase)
	if err != nil {
		out.Status, out.Err = StatusSkipped, err
		logger.Warn().Err(err).Msg("Skipping source")
		return out
	}

	start := time.Now()
	data, err := d.fetcher.Fetch(ctx, entry.Location)
	d.metrics.ObserveFetch(time.Since(start))
	logging.LogDuration(logger, start, "fetch")
	if err != nil {
		out.Status, out.Err = StatusSkipped, err
		logger.Warn().Err(err).Str("location", entry.Location).Msg("Skipping source")
		return out
	}

	doc := source.NewDocument(entry.Kind.Resolve(entry.Location), entry.Name, data)
	rs, stats := ruleset.Build(doc.Lines(), logger)
	out.Stats = stats
	out.Domains, out.CIDRs = len(rs.Domains), len(rs.CIDRs)

	if _, err := d.writer.Write(artifact, rs); err != nil {
		out.Status, out.Err = StatusFailed, err
		logger.Error().Err(err).Msg("Failed to write artifact")
		return out
	}

	if rs.Empty() {
		out.Status = StatusEmpty
		logger.Info().Int("dropped", stats.Dropped()).Msg("No actionable rules")
		return out
	}

	out.Status = StatusWritten
	logger.Info().
		Int("domains", out.Domains).
		Int("cidrs", out.CIDRs).
		Int("dropped", stats.Dropped()).
		Msg("Source written")
	return out
}

func (d *Driver) duplicate(entry catalog.Entry, phase Phase) Outcome {
	out := Outcome{Source: entry, Phase: phase, Status: StatusSkipped, Err: fmt.Errorf("%w: %q", ErrDuplicateName, entry.Name)}
	d.record(&out)
	d.logger.Warn().
		Str("source", entry.Name).
		Str("phase", string(phase)).
		Str("location", entry.Location).
		Msg("Skipping source with duplicate name")
	return out
}

func (d *Driver) artifact(name string, phase Phase) (output.Artifact, error) {
	if phase == PhaseCustom {
		return d.writer.CustomArtifact(name)
	}
	return d.writer.SourceArtifact(name)
}

func (d *Driver) record(out *Outcome) {
	d.metrics.Source(out.Status.String())
	d.metrics.Dropped("keyword", out.Stats.Keywords)
	d.metrics.Dropped("unrecognized", out.Stats.Unrecognized)
	d.metrics.Dropped("invalid_cidr", out.Stats.InvalidCIDRs)
	if out.Status == StatusWritten {
		d.metrics.Entries(out.Domains, out.CIDRs)
	}
}
