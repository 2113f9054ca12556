package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-cli/internal/db"
	"github.com/sells-group/venue-cli/internal/importer"
	"github.com/sells-group/venue-cli/internal/scrape"
	"github.com/sells-group/venue-cli/internal/venue"
	"github.com/sells-group/venue-cli/pkg/places"
)

func newBuilder() (*venue.Builder, error) {
	merge := venue.MergeStrategy(cfg.Scrape.MergeStrategy)
	if !merge.Valid() {
		return nil, eris.Errorf("unsupported merge strategy: %s", cfg.Scrape.MergeStrategy)
	}

	cons := venue.NewConsolidator()
	if weights := cfg.SourceWeights(); weights != nil {
		cons.Weights = weights
	}

	return venue.NewBuilder(cons, venue.WithMergeStrategy(merge)), nil
}

func initStore(ctx context.Context) (importer.Store, error) {
	builder, err := newBuilder()
	if err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "venues.db"
		}
		return importer.NewSQLite(dsn, builder)
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
		if err != nil {
			return nil, err
		}
		return importer.NewPostgres(pool, builder), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSource() (scrape.Source, error) {
	switch cfg.Scrape.Source {
	case "mock":
		return &scrape.MockSource{}, nil
	case "google":
		if cfg.Google.APIKey == "" {
			return nil, eris.New("google places API key is required (VENUE_GOOGLE_API_KEY)")
		}
		client := places.NewClient(cfg.Google.APIKey, places.WithBaseURL(cfg.Google.BaseURL))
		return scrape.NewGoogleSource(client), nil
	default:
		return nil, eris.Errorf("unsupported scrape source: %s", cfg.Scrape.Source)
	}
}
