package venue

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// MergeStrategy controls how set-valued fields (amenities, tags, photos) are
// merged when an observation updates an existing venue.
type MergeStrategy string

const (
	// MergeReplace treats each observation as a complete current snapshot
	// and replaces the stored sets. This is the default: mixing partial
	// snapshots from different scrape runs produces stale ghost tags.
	MergeReplace MergeStrategy = "replace"

	// MergeUnion appends unseen incoming values after the existing ones.
	MergeUnion MergeStrategy = "union"
)

// Valid reports whether m is a known merge strategy.
func (m MergeStrategy) Valid() bool {
	return m == MergeReplace || m == MergeUnion
}

// ValidationError marks a malformed observation rejected at the builder
// boundary. Such records are never persisted and count as non-imports.
type ValidationError struct {
	Source   Source
	SourceID string
	Reason   string
}

func (e *ValidationError) Error() string {
	return "venue: invalid observation from " + string(e.Source) + " (" + e.SourceID + "): " + e.Reason
}

// IsValidationError reports whether err is a builder validation rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return eris.As(err, &ve)
}

// Builder normalizes raw observations into canonical venue records and
// recomputes the derived fields. No I/O; deterministic given the same
// inputs and clock.
type Builder struct {
	cons  *Consolidator
	merge MergeStrategy
	now   func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMergeStrategy overrides the default replace semantics for set fields.
func WithMergeStrategy(m MergeStrategy) BuilderOption {
	return func(b *Builder) {
		b.merge = m
	}
}

// WithClock overrides the clock used for LastUpdated.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a Builder around the given consolidator.
func NewBuilder(cons *Consolidator, opts ...BuilderOption) *Builder {
	b := &Builder{
		cons:  cons,
		merge: MergeReplace,
		now:   time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build folds raw into a working copy of existing (or a fresh record when
// existing is nil). Scalar fields are last-observation-wins; set fields
// follow the merge strategy; the raw source's rating slot is set and all
// derived fields recomputed.
func (b *Builder) Build(raw RawObservation, existing *Venue) (*Venue, error) {
	if err := validate(raw); err != nil {
		return nil, err
	}

	var v Venue
	if existing != nil {
		v = cloneVenue(existing)
	} else {
		v.SourceIDs = make(map[Source]string)
		v.Ratings = make(map[Source]SourceRating)
	}

	v.Name = raw.Name
	v.Address = raw.Address
	v.NameKey = IdentityKey(raw.Name)
	v.AddressKey = IdentityKey(raw.Address)
	v.Latitude = raw.Latitude
	v.Longitude = raw.Longitude

	if raw.City != "" {
		v.City = raw.City
	}
	if raw.State != "" {
		v.State = raw.State
	}
	if raw.Zip != "" {
		v.Zip = raw.Zip
	}
	if raw.Category != "" {
		v.Category = raw.Category
	}
	if raw.Subcategory != "" {
		v.Subcategory = raw.Subcategory
	}
	if raw.CuisineType != "" {
		v.CuisineType = raw.CuisineType
	}
	if raw.PriceRange != 0 {
		v.PriceRange = raw.PriceRange
	}
	if raw.Hours != nil {
		v.Hours = cloneMap(raw.Hours)
	}

	if raw.SourceID != "" {
		v.SourceIDs[raw.Source] = raw.SourceID
	}

	if raw.Rating != nil {
		slot := SourceRating{Rating: *raw.Rating}
		if raw.ReviewCount != nil {
			slot.ReviewCount = *raw.ReviewCount
		}
		v.Ratings[raw.Source] = slot
	}

	v.Amenities = b.mergeSet(v.Amenities, raw.Amenities)
	v.Tags = b.mergeSet(v.Tags, raw.Tags)
	v.Photos = b.mergeSet(v.Photos, raw.Photos)

	derived := b.cons.Consolidate(v.Ratings)
	v.AggregateRating = derived.AggregateRating
	v.TotalReviewCount = derived.TotalReviewCount
	v.PopularityScore = derived.PopularityScore
	v.QualityScore = derived.QualityScore

	v.LastUpdated = b.now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = v.LastUpdated
	}

	return &v, nil
}

// mergeSet applies the configured strategy. Incoming order is preserved;
// union keeps existing entries first and appends unseen incoming ones.
func (b *Builder) mergeSet(existing, incoming []string) []string {
	if b.merge == MergeReplace {
		if incoming == nil {
			return existing
		}
		return append([]string(nil), incoming...)
	}

	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range incoming {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func validate(raw RawObservation) error {
	reject := func(reason string) error {
		return &ValidationError{Source: raw.Source, SourceID: raw.SourceID, Reason: reason}
	}

	if !raw.Source.Valid() {
		return reject("unknown source")
	}
	if strings.TrimSpace(raw.Name) == "" {
		return reject("missing name")
	}
	if strings.TrimSpace(raw.Address) == "" {
		return reject("missing address")
	}
	if raw.Latitude == 0 && raw.Longitude == 0 {
		return reject("missing coordinates")
	}
	if raw.Rating != nil && (*raw.Rating < 0 || *raw.Rating > 5) {
		return reject("rating out of range")
	}
	if raw.ReviewCount != nil && *raw.ReviewCount < 0 {
		return reject("negative review count")
	}
	if raw.PriceRange < 0 || raw.PriceRange > 4 {
		return reject("price range out of range")
	}
	return nil
}

// IdentityKey normalizes a name or address for identity matching: case
// folded, whitespace collapsed, trimmed. A fresh Caser per call since
// Casers are not safe for concurrent use.
func IdentityKey(s string) string {
	folded := cases.Fold().String(s)
	return strings.Join(strings.Fields(folded), " ")
}

func cloneVenue(v *Venue) Venue {
	out := *v
	out.SourceIDs = make(map[Source]string, len(v.SourceIDs))
	for k, val := range v.SourceIDs {
		out.SourceIDs[k] = val
	}
	out.Ratings = make(map[Source]SourceRating, len(v.Ratings))
	for k, val := range v.Ratings {
		out.Ratings[k] = val
	}
	out.Hours = cloneMap(v.Hours)
	out.Amenities = append([]string(nil), v.Amenities...)
	out.Tags = append([]string(nil), v.Tags...)
	out.Photos = append([]string(nil), v.Photos...)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
