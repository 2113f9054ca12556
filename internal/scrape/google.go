package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-cli/internal/resilience"
	"github.com/sells-group/venue-cli/internal/venue"
	"github.com/sells-group/venue-cli/pkg/places"
)

// GoogleSource backs a work unit with Places text search. Mapping is best
// effort: results missing name, address, or coordinates are dropped by the
// builder downstream, not here.
type GoogleSource struct {
	client places.Client
}

// NewGoogleSource wraps a Places client as a Source.
func NewGoogleSource(client places.Client) *GoogleSource {
	return &GoogleSource{client: client}
}

func (g *GoogleSource) Name() string {
	return "google"
}

func (g *GoogleSource) Fetch(ctx context.Context, region, category, subcategory string) ([]venue.RawObservation, error) {
	what := category
	if subcategory != "" {
		what = subcategory
	}
	query := fmt.Sprintf("%s in %s", what, region)

	resp, err := g.client.TextSearch(ctx, query)
	if err != nil {
		var apiErr *places.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, eris.Wrapf(err, "scrape: places search %q", query)
	}

	obs := make([]venue.RawObservation, 0, len(resp.Places))
	for _, p := range resp.Places {
		var rating *float64
		var reviews *int
		if p.Rating > 0 || p.UserRatingCount > 0 {
			r, n := p.Rating, p.UserRatingCount
			rating, reviews = &r, &n
		}

		photos := make([]string, 0, len(p.Photos))
		for _, ph := range p.Photos {
			photos = append(photos, ph.Name)
		}

		obs = append(obs, venue.RawObservation{
			Source:      venue.SourceGoogle,
			SourceID:    p.ID,
			Name:        p.DisplayName.Text,
			Address:     p.FormattedAddress,
			City:        region,
			Latitude:    p.Location.Latitude,
			Longitude:   p.Location.Longitude,
			Category:    category,
			Subcategory: subcategory,
			PriceRange:  priceLevelToRange(p.PriceLevel),
			Rating:      rating,
			ReviewCount: reviews,
			Tags:        p.Types,
			Photos:      photos,
		})
	}
	return obs, nil
}

func priceLevelToRange(level string) int {
	switch strings.TrimPrefix(level, "PRICE_LEVEL_") {
	case "INEXPENSIVE":
		return 1
	case "MODERATE":
		return 2
	case "EXPENSIVE":
		return 3
	case "VERY_EXPENSIVE":
		return 4
	default:
		return 0
	}
}
