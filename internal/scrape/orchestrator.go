package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/venue-cli/internal/importer"
	"github.com/sells-group/venue-cli/internal/resilience"
	"github.com/sells-group/venue-cli/internal/venue"
)

const (
	defaultBatchSize    = 5
	defaultBatchDelay   = 2 * time.Second
	defaultFetchTimeout = 30 * time.Second
)

// RunSummary is the terminal output of a full scrape. A region fails only
// when every one of its units failed; partial success keeps it completed
// with a lower count.
type RunSummary struct {
	TotalVenues      int            `json:"totalVenues"`
	ByRegion         map[string]int `json:"byRegion"`
	ByCategory       map[string]int `json:"byCategory"`
	RegionsCompleted []string       `json:"regionsCompleted"`
	RegionsFailed    []string       `json:"regionsFailed"`
}

// Orchestrator drives a scrape: (region, category) units dispatched in
// fixed batches, each unit fetched, imported, and recorded as one
// ScrapeRun. Unit failures never abort siblings or the run.
type Orchestrator struct {
	source       Source
	store        importer.Store
	pacer        Pacer
	batchSize    int
	fetchTimeout time.Duration
	retry        resilience.Policy
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPacer overrides the inter-batch pacing policy.
func WithPacer(p Pacer) Option {
	return func(o *Orchestrator) { o.pacer = p }
}

// WithBatchSize sets how many units run concurrently per batch.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithFetchTimeout bounds each Source.Fetch call.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithRetryPolicy overrides the transient-fetch retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// NewOrchestrator creates an Orchestrator with default pacing: batches of
// five units, a two second pause between batches, a 30s fetch timeout, and
// one retry on transient fetch errors.
func NewOrchestrator(source Source, store importer.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:       source,
		store:        store,
		pacer:        FixedPacer{Delay: defaultBatchDelay},
		batchSize:    defaultBatchSize,
		fetchTimeout: defaultFetchTimeout,
		retry:        resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// unit is one (region, category, subcategory) work item.
type unit struct {
	region      string
	category    string
	subcategory string
}

func (u unit) label() string {
	if u.subcategory != "" {
		return u.region + "/" + u.category + "/" + u.subcategory
	}
	return u.region + "/" + u.category
}

// enumerateUnits crosses regions with categories; a category with
// subcategories yields one unit per subcategory.
func enumerateUnits(regions []string, categories []Category) []unit {
	var units []unit
	for _, region := range regions {
		for _, cat := range categories {
			if len(cat.Subcategories) == 0 {
				units = append(units, unit{region: region, category: cat.Name})
				continue
			}
			for _, sub := range cat.Subcategories {
				units = append(units, unit{region: region, category: cat.Name, subcategory: sub})
			}
		}
	}
	return units
}

// ScrapeAll runs every unit and returns the aggregate summary. Unit
// failures surface in the summary and the per-unit ScrapeRuns, never as an
// error; the error return covers only a misconfigured orchestrator.
// Cancelling ctx stops dispatching new batches while in-flight units
// drain, so the summary then covers the units that actually ran.
func (o *Orchestrator) ScrapeAll(ctx context.Context, regions []string, categories []Category) (*RunSummary, error) {
	if o.source == nil || o.store == nil {
		return nil, eris.New("scrape: orchestrator needs a source and a store")
	}

	log := zap.L().With(
		zap.String("component", "scrape.orchestrator"),
		zap.String("source", o.source.Name()),
	)

	units := enumerateUnits(regions, categories)
	log.Info("starting scrape",
		zap.Int("units", len(units)),
		zap.Int("batch_size", o.batchSize),
	)

	summary := &RunSummary{
		ByRegion:   make(map[string]int),
		ByCategory: make(map[string]int),
	}
	unitsPerRegion := make(map[string]int)
	failedPerRegion := make(map[string]int)
	var mu sync.Mutex

	for start := 0; start < len(units); start += o.batchSize {
		if ctx.Err() != nil {
			log.Warn("scrape cancelled, skipping remaining batches",
				zap.Int("remaining", len(units)-start))
			break
		}

		if start > 0 {
			if err := o.pacer.Pause(ctx); err != nil {
				break
			}
		}

		end := min(start+o.batchSize, len(units))
		batch := units[start:end]

		var g errgroup.Group
		for _, u := range batch {
			g.Go(func() error {
				imported, failed := o.runUnit(ctx, log, u)

				mu.Lock()
				defer mu.Unlock()
				summary.TotalVenues += imported
				summary.ByRegion[u.region] += imported
				summary.ByCategory[u.category] += imported
				unitsPerRegion[u.region]++
				if failed {
					failedPerRegion[u.region]++
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	// Preserve input region order in the completed/failed lists.
	for _, region := range regions {
		total := unitsPerRegion[region]
		if total == 0 {
			continue
		}
		if failedPerRegion[region] == total {
			summary.RegionsFailed = append(summary.RegionsFailed, region)
		} else {
			summary.RegionsCompleted = append(summary.RegionsCompleted, region)
		}
	}

	log.Info("scrape complete",
		zap.Int("total_venues", summary.TotalVenues),
		zap.Int("regions_completed", len(summary.RegionsCompleted)),
		zap.Int("regions_failed", len(summary.RegionsFailed)),
	)
	return summary, nil
}

// runUnit fetches and imports one unit and records its ScrapeRun. An
// in-flight unit finishes its writes even when the run context is
// cancelled; only new fetch work respects the cancellation.
func (o *Orchestrator) runUnit(ctx context.Context, log *zap.Logger, u unit) (imported int, failed bool) {
	uLog := log.With(zap.String("unit", u.label()))
	started := time.Now().UTC()

	run := &venue.ScrapeRun{
		Region:   u.region,
		Category: u.category,
		Source:   o.source.Name(),
	}

	retry := o.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(o.source.Name(), u.label())
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	obs, err := resilience.RetryVal(fetchCtx, retry, func(ctx context.Context) ([]venue.RawObservation, error) {
		return o.source.Fetch(ctx, u.region, u.category, u.subcategory)
	})
	cancel()

	if err != nil {
		uLog.Error("fetch failed", zap.Error(err))
		run.Status = venue.RunFailed
		run.ErrorMessage = err.Error()
		o.finishRun(ctx, uLog, run, started)
		return 0, true
	}

	// The import must not be cut off mid-unit; drain semantics over speed.
	res, err := o.store.BulkImport(context.WithoutCancel(ctx), obs)
	if err != nil {
		uLog.Error("import failed", zap.Error(err))
		run.Status = venue.RunFailed
		run.ErrorMessage = err.Error()
		run.VenuesFound = res.Found
		run.VenuesImported = res.Imported
		o.finishRun(ctx, uLog, run, started)
		return res.Imported, true
	}

	run.VenuesFound = res.Found
	run.VenuesImported = res.Imported
	if res.Imported < res.Found {
		run.Status = venue.RunPartial
	} else {
		run.Status = venue.RunOK
	}

	o.finishRun(ctx, uLog, run, started)
	uLog.Info("unit complete",
		zap.String("status", string(run.Status)),
		zap.Int("found", res.Found),
		zap.Int("imported", res.Imported),
	)
	return res.Imported, false
}

func (o *Orchestrator) finishRun(ctx context.Context, log *zap.Logger, run *venue.ScrapeRun, started time.Time) {
	run.StartedAt = started
	run.CompletedAt = time.Now().UTC()
	if err := o.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("failed to record scrape run", zap.Error(err))
	}
}
