// Package scrape drives venue collection: it enumerates (region, category)
// work units, fetches raw observations from a Source, imports them through
// the store, and records one ScrapeRun per unit.
package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-cli/internal/venue"
)

// Source fetches raw venue observations for one work unit. Implementations
// must be safe for concurrent use; the orchestrator calls Fetch from
// multiple workers.
type Source interface {
	Name() string
	Fetch(ctx context.Context, region, category, subcategory string) ([]venue.RawObservation, error)
}

// MultiSource fans one fetch out to several providers sequentially and
// concatenates the results. Any provider error fails the whole unit; run
// each provider under its own orchestrator when per-provider audit rows
// are wanted.
type MultiSource struct {
	sources []Source
}

// NewMultiSource combines the given providers.
func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) Name() string {
	name := "multi"
	for _, s := range m.sources {
		name += "+" + s.Name()
	}
	return name
}

func (m *MultiSource) Fetch(ctx context.Context, region, category, subcategory string) ([]venue.RawObservation, error) {
	var all []venue.RawObservation
	for _, s := range m.sources {
		obs, err := s.Fetch(ctx, region, category, subcategory)
		if err != nil {
			return nil, eris.Wrapf(err, "scrape: fetch from %s", s.Name())
		}
		all = append(all, obs...)
	}
	return all, nil
}
