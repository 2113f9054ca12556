package importer

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-cli/internal/venue"
)

// Per-source column names in the venues table. The google external ID keeps
// its legacy google_maps_id name for schema parity with the directory app.
var sourceIDColumns = map[venue.Source]string{
	venue.SourceGoogle:      "google_maps_id",
	venue.SourceYelp:        "yelp_id",
	venue.SourceTripAdvisor: "tripadvisor_id",
	venue.SourceFoursquare:  "foursquare_id",
	venue.SourceOpenTable:   "opentable_id",
}

// venueColumns is every venues column except id, in the order used by the
// insert/update statements and the scanners below.
var venueColumns = []string{
	"name", "address", "name_key", "address_key",
	"city", "state", "zip", "latitude", "longitude",
	"category", "subcategory", "cuisine_type", "price_range",
	"google_maps_id", "yelp_id", "tripadvisor_id", "foursquare_id", "opentable_id",
	"google_rating", "google_review_count",
	"yelp_rating", "yelp_review_count",
	"tripadvisor_rating", "tripadvisor_review_count",
	"foursquare_rating", "foursquare_review_count",
	"opentable_rating", "opentable_review_count",
	"aggregate_rating", "total_review_count", "popularity_score", "quality_score",
	"hours", "amenities", "tags", "photos",
	"last_updated", "created_at",
}

// encodeVenue produces the argument list matching venueColumns. Absent
// external IDs, rating slots, and price range are encoded as NULL, never as
// zero values, so the partial unique indexes and invariants hold.
func encodeVenue(v *venue.Venue) ([]any, error) {
	args := []any{
		v.Name, v.Address, v.NameKey, v.AddressKey,
		v.City, v.State, v.Zip, v.Latitude, v.Longitude,
		v.Category, v.Subcategory, v.CuisineType, nullableInt(v.PriceRange),
	}

	for _, src := range venue.Sources {
		if id, ok := v.SourceIDs[src]; ok && id != "" {
			args = append(args, id)
		} else {
			args = append(args, nil)
		}
	}

	for _, src := range venue.Sources {
		if slot, ok := v.Ratings[src]; ok {
			args = append(args, slot.Rating, slot.ReviewCount)
		} else {
			args = append(args, nil, nil)
		}
	}

	args = append(args, v.AggregateRating, v.TotalReviewCount, v.PopularityScore, v.QualityScore)

	for _, field := range []any{v.Hours, v.Amenities, v.Tags, v.Photos} {
		blob, err := marshalJSON(field)
		if err != nil {
			return nil, err
		}
		args = append(args, blob)
	}

	args = append(args, v.LastUpdated, v.CreatedAt)
	return args, nil
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row, and *sql.Rows,
// letting both backends share one decoder.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanVenue decodes one venues row selected as id + venueColumns.
func scanVenue(row rowScanner) (*venue.Venue, error) {
	var (
		v          venue.Venue
		priceRange *int
		ids        [5]*string
		ratings    [5]*float64
		reviews    [5]*int
		hours      []byte
		amenities  []byte
		tags       []byte
		photos     []byte
	)

	err := row.Scan(
		&v.ID,
		&v.Name, &v.Address, &v.NameKey, &v.AddressKey,
		&v.City, &v.State, &v.Zip, &v.Latitude, &v.Longitude,
		&v.Category, &v.Subcategory, &v.CuisineType, &priceRange,
		&ids[0], &ids[1], &ids[2], &ids[3], &ids[4],
		&ratings[0], &reviews[0],
		&ratings[1], &reviews[1],
		&ratings[2], &reviews[2],
		&ratings[3], &reviews[3],
		&ratings[4], &reviews[4],
		&v.AggregateRating, &v.TotalReviewCount, &v.PopularityScore, &v.QualityScore,
		&hours, &amenities, &tags, &photos,
		&v.LastUpdated, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if priceRange != nil {
		v.PriceRange = *priceRange
	}

	v.SourceIDs = make(map[venue.Source]string)
	v.Ratings = make(map[venue.Source]venue.SourceRating)
	for i, src := range venue.Sources {
		if ids[i] != nil && *ids[i] != "" {
			v.SourceIDs[src] = *ids[i]
		}
		if ratings[i] != nil {
			slot := venue.SourceRating{Rating: *ratings[i]}
			if reviews[i] != nil {
				slot.ReviewCount = *reviews[i]
			}
			v.Ratings[src] = slot
		}
	}

	if err := unmarshalJSON(hours, &v.Hours); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(amenities, &v.Amenities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tags, &v.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(photos, &v.Photos); err != nil {
		return nil, err
	}

	v.LastUpdated = v.LastUpdated.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func marshalJSON(field any) (any, error) {
	if isEmptyCollection(field) {
		return nil, nil
	}
	blob, err := json.Marshal(field)
	if err != nil {
		return nil, eris.Wrap(err, "importer: marshal venue field")
	}
	return blob, nil
}

func unmarshalJSON[T any](blob []byte, dest *T) error {
	if len(blob) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, dest); err != nil {
		return eris.Wrap(err, "importer: unmarshal venue field")
	}
	return nil
}

func isEmptyCollection(field any) bool {
	switch f := field.(type) {
	case map[string]string:
		return len(f) == 0
	case []string:
		return len(f) == 0
	}
	return field == nil
}

// runTimes normalizes audit timestamps to UTC before persisting.
func runTimes(run *venue.ScrapeRun) (started, completed time.Time) {
	return run.StartedAt.UTC(), run.CompletedAt.UTC()
}
