package scrape

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-cli/internal/importer"
	"github.com/sells-group/venue-cli/internal/venue"
)

type fakeSource struct {
	fetch func(ctx context.Context, region, category, subcategory string) ([]venue.RawObservation, error)
	calls atomic.Int64
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, region, category, subcategory string) ([]venue.RawObservation, error) {
	f.calls.Add(1)
	return f.fetch(ctx, region, category, subcategory)
}

type fakeStore struct {
	mu       sync.Mutex
	runs     []venue.ScrapeRun
	importFn func(obs []venue.RawObservation) (importer.ImportResult, error)
}

func (f *fakeStore) BulkImport(_ context.Context, obs []venue.RawObservation) (importer.ImportResult, error) {
	if f.importFn != nil {
		return f.importFn(obs)
	}
	return importer.ImportResult{Found: len(obs), Imported: len(obs)}, nil
}

func (f *fakeStore) RecordRun(_ context.Context, run *venue.ScrapeRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeStore) recorded() []venue.ScrapeRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]venue.ScrapeRun(nil), f.runs...)
}

func (f *fakeStore) Upsert(context.Context, *venue.Venue) (bool, error) { return false, nil }
func (f *fakeStore) GetVenueByExternalID(context.Context, venue.Source, string) (*venue.Venue, error) {
	return nil, nil
}
func (f *fakeStore) GetVenueByIdentity(context.Context, string, string) (*venue.Venue, error) {
	return nil, nil
}
func (f *fakeStore) ListRuns(context.Context, int) ([]venue.ScrapeRun, error) { return nil, nil }
func (f *fakeStore) Migrate(context.Context) error                           { return nil }
func (f *fakeStore) Close() error                                            { return nil }

func sampleObs(region, category string, n int) []venue.RawObservation {
	obs := make([]venue.RawObservation, n)
	for i := range obs {
		obs[i] = venue.RawObservation{
			Source:    venue.SourceGoogle,
			Name:      region + " venue",
			Address:   "1 Main St",
			Latitude:  40,
			Longitude: -89,
			Category:  category,
		}
	}
	return obs
}

func categories(names ...string) []Category {
	cats := make([]Category, len(names))
	for i, n := range names {
		cats[i] = Category{Name: n}
	}
	return cats
}

func newTestOrchestrator(src Source, store importer.Store, opts ...Option) *Orchestrator {
	base := []Option{WithPacer(FixedPacer{}), WithFetchTimeout(time.Second)}
	return NewOrchestrator(src, store, append(base, opts...)...)
}

func TestScrapeAll_OneFailingUnitAmongSix(t *testing.T) {
	src := &fakeSource{fetch: func(_ context.Context, region, category, _ string) ([]venue.RawObservation, error) {
		if region == "riverside" && category == "cafe" {
			return nil, eris.New("provider exploded")
		}
		return sampleObs(region, category, 4), nil
	}}
	store := &fakeStore{}

	o := newTestOrchestrator(src, store)
	summary, err := o.ScrapeAll(context.Background(),
		[]string{"downtown", "riverside", "uptown"}, categories("restaurant", "cafe"))

	require.NoError(t, err)
	assert.Equal(t, 20, summary.TotalVenues)
	assert.Equal(t, []string{"downtown", "riverside", "uptown"}, summary.RegionsCompleted)
	assert.Empty(t, summary.RegionsFailed)
	assert.Equal(t, 4, summary.ByRegion["riverside"])
	assert.Equal(t, 12, summary.ByCategory["restaurant"])

	runs := store.recorded()
	require.Len(t, runs, 6)
	var ok, failed int
	for _, r := range runs {
		switch r.Status {
		case venue.RunOK:
			ok++
		case venue.RunFailed:
			failed++
			assert.Equal(t, "riverside", r.Region)
			assert.Contains(t, r.ErrorMessage, "provider exploded")
		}
		assert.False(t, r.CompletedAt.Before(r.StartedAt))
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 1, failed)
}

func TestScrapeAll_RegionFailsOnlyWhenEveryUnitFails(t *testing.T) {
	src := &fakeSource{fetch: func(_ context.Context, region, category, _ string) ([]venue.RawObservation, error) {
		if region == "swamp" {
			return nil, eris.New("no data for swamp")
		}
		return sampleObs(region, category, 2), nil
	}}
	store := &fakeStore{}

	o := newTestOrchestrator(src, store)
	summary, err := o.ScrapeAll(context.Background(),
		[]string{"downtown", "swamp"}, categories("restaurant", "bar"))

	require.NoError(t, err)
	assert.Equal(t, []string{"downtown"}, summary.RegionsCompleted)
	assert.Equal(t, []string{"swamp"}, summary.RegionsFailed)
	assert.Zero(t, summary.ByRegion["swamp"])
}

func TestScrapeAll_TotalFailureStillReturnsSummary(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, string, string, string) ([]venue.RawObservation, error) {
		return nil, eris.New("everything is down")
	}}
	store := &fakeStore{}

	o := newTestOrchestrator(src, store)
	summary, err := o.ScrapeAll(context.Background(), []string{"a", "b"}, categories("restaurant"))

	require.NoError(t, err)
	assert.Zero(t, summary.TotalVenues)
	assert.Empty(t, summary.RegionsCompleted)
	assert.Equal(t, []string{"a", "b"}, summary.RegionsFailed)
}

func TestScrapeAll_PartialImportMarksRunPartial(t *testing.T) {
	src := &fakeSource{fetch: func(_ context.Context, region, category, _ string) ([]venue.RawObservation, error) {
		return sampleObs(region, category, 10), nil
	}}
	store := &fakeStore{importFn: func(obs []venue.RawObservation) (importer.ImportResult, error) {
		return importer.ImportResult{Found: len(obs), Imported: len(obs) - 2}, nil
	}}

	o := newTestOrchestrator(src, store)
	summary, err := o.ScrapeAll(context.Background(), []string{"downtown"}, categories("restaurant"))

	require.NoError(t, err)
	assert.Equal(t, 8, summary.TotalVenues)
	assert.Equal(t, []string{"downtown"}, summary.RegionsCompleted)

	runs := store.recorded()
	require.Len(t, runs, 1)
	assert.Equal(t, venue.RunPartial, runs[0].Status)
	assert.Equal(t, 10, runs[0].VenuesFound)
	assert.Equal(t, 8, runs[0].VenuesImported)
}

func TestScrapeAll_CancelStopsNewBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := &fakeSource{}
	src.fetch = func(_ context.Context, region, category, _ string) ([]venue.RawObservation, error) {
		if src.calls.Load() == 1 {
			cancel()
		}
		return sampleObs(region, category, 3), nil
	}
	store := &fakeStore{}

	o := newTestOrchestrator(src, store, WithBatchSize(1))
	summary, err := o.ScrapeAll(ctx, []string{"a", "b", "c", "d"}, categories("restaurant"))

	require.NoError(t, err)
	// First unit finished its import despite cancellation; no further batch
	// was dispatched.
	assert.Equal(t, int64(1), src.calls.Load())
	assert.Equal(t, 3, summary.TotalVenues)
	require.Len(t, store.recorded(), 1)
	assert.Equal(t, venue.RunOK, store.recorded()[0].Status)
}

func TestScrapeAll_FetchTimeoutProducesFailedRun(t *testing.T) {
	src := &fakeSource{fetch: func(ctx context.Context, _, _, _ string) ([]venue.RawObservation, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	store := &fakeStore{}

	o := newTestOrchestrator(src, store, WithFetchTimeout(20*time.Millisecond))
	summary, err := o.ScrapeAll(context.Background(), []string{"downtown"}, categories("restaurant"))

	require.NoError(t, err)
	assert.Zero(t, summary.TotalVenues)

	runs := store.recorded()
	require.Len(t, runs, 1)
	assert.Equal(t, venue.RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].ErrorMessage)
}

func TestScrapeAll_BatchSizeBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64

	src := &fakeSource{fetch: func(_ context.Context, region, category, _ string) ([]venue.RawObservation, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return sampleObs(region, category, 1), nil
	}}
	store := &fakeStore{}

	o := newTestOrchestrator(src, store, WithBatchSize(3))
	_, err := o.ScrapeAll(context.Background(),
		[]string{"a", "b", "c", "d", "e"}, categories("restaurant", "bar"))

	require.NoError(t, err)
	assert.Equal(t, int64(10), src.calls.Load())
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestEnumerateUnits_SubcategoriesExpand(t *testing.T) {
	units := enumerateUnits([]string{"downtown"}, []Category{
		{Name: "restaurant", Subcategories: []string{"italian", "thai"}},
		{Name: "bar"},
	})

	require.Len(t, units, 3)
	assert.Equal(t, unit{region: "downtown", category: "restaurant", subcategory: "italian"}, units[0])
	assert.Equal(t, unit{region: "downtown", category: "restaurant", subcategory: "thai"}, units[1])
	assert.Equal(t, unit{region: "downtown", category: "bar"}, units[2])
}
