// Package venue holds the canonical venue model and the pure aggregation
// logic that folds per-source observations into derived ratings and scores.
package venue

import (
	"time"
)

// Source identifies an external rating provider.
type Source string

// Known rating providers.
const (
	SourceGoogle      Source = "google"
	SourceYelp        Source = "yelp"
	SourceTripAdvisor Source = "tripadvisor"
	SourceFoursquare  Source = "foursquare"
	SourceOpenTable   Source = "opentable"
)

// Sources lists all known providers in canonical order.
var Sources = []Source{
	SourceGoogle,
	SourceYelp,
	SourceTripAdvisor,
	SourceFoursquare,
	SourceOpenTable,
}

// Valid reports whether s is a known provider.
func (s Source) Valid() bool {
	switch s {
	case SourceGoogle, SourceYelp, SourceTripAdvisor, SourceFoursquare, SourceOpenTable:
		return true
	}
	return false
}

// RawObservation is one source's view of one venue at scrape time. It is
// immutable and discarded once folded into a canonical Venue.
type RawObservation struct {
	Source      Source            `json:"source"`
	SourceID    string            `json:"source_id"`
	Name        string            `json:"name"`
	Address     string            `json:"address"`
	City        string            `json:"city"`
	State       string            `json:"state"`
	Zip         string            `json:"zip"`
	Latitude    float64           `json:"latitude"`
	Longitude   float64           `json:"longitude"`
	Category    string            `json:"category"`
	Subcategory string            `json:"subcategory"`
	CuisineType string            `json:"cuisine_type,omitempty"`
	PriceRange  int               `json:"price_range,omitempty"`
	Rating      *float64          `json:"rating,omitempty"`
	ReviewCount *int              `json:"review_count,omitempty"`
	Hours       map[string]string `json:"hours,omitempty"`
	Amenities   []string          `json:"amenities,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Photos      []string          `json:"photos,omitempty"`
}

// SourceRating is one populated per-source rating slot.
type SourceRating struct {
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

// Venue is the persisted canonical record. Identity is the normalized
// (name, address) pair or any populated per-source external ID.
type Venue struct {
	ID         int64  `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	Address    string `json:"address" db:"address"`
	NameKey    string `json:"-" db:"name_key"`
	AddressKey string `json:"-" db:"address_key"`

	City      string  `json:"city,omitempty" db:"city"`
	State     string  `json:"state,omitempty" db:"state"`
	Zip       string  `json:"zip,omitempty" db:"zip"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`

	Category    string `json:"category,omitempty" db:"category"`
	Subcategory string `json:"subcategory,omitempty" db:"subcategory"`
	CuisineType string `json:"cuisine_type,omitempty" db:"cuisine_type"`
	PriceRange  int    `json:"price_range,omitempty" db:"price_range"`

	// SourceIDs holds per-provider external IDs, each individually unique
	// across all venues when present.
	SourceIDs map[Source]string `json:"source_ids,omitempty"`

	// Ratings holds one optional rating slot per provider. Unpopulated
	// slots are absent from the map, never zero-valued.
	Ratings map[Source]SourceRating `json:"ratings,omitempty"`

	AggregateRating  *float64 `json:"aggregate_rating,omitempty" db:"aggregate_rating"`
	TotalReviewCount int      `json:"total_review_count" db:"total_review_count"`
	PopularityScore  float64  `json:"popularity_score" db:"popularity_score"`
	QualityScore     float64  `json:"quality_score" db:"quality_score"`

	Hours     map[string]string `json:"hours,omitempty"`
	Amenities []string          `json:"amenities,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Photos    []string          `json:"photos,omitempty"`

	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// RunStatus is the terminal state of a scrape unit.
type RunStatus string

// Scrape run outcomes.
const (
	RunOK      RunStatus = "ok"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// ScrapeRun is the audit record for one (region, category, source) unit of
// work. Written once when the unit finishes and never mutated afterward.
type ScrapeRun struct {
	ID             string    `json:"id" db:"id"`
	Region         string    `json:"region" db:"region"`
	Category       string    `json:"category" db:"category"`
	Source         string    `json:"source" db:"source"`
	VenuesFound    int       `json:"venues_found" db:"venues_found"`
	VenuesImported int       `json:"venues_imported" db:"venues_imported"`
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	CompletedAt    time.Time `json:"completed_at" db:"completed_at"`
	Status         RunStatus `json:"status" db:"status"`
	ErrorMessage   string    `json:"error_message,omitempty" db:"error_message"`
}
