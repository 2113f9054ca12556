package venue

import (
	"fmt"
	"math"
)

// Default source weights for the aggregate rating. Chosen so that no single
// provider dominates the blend; override per deployment via config.
var DefaultWeights = map[Source]float64{
	SourceGoogle:      1.2,
	SourceYelp:        1.0,
	SourceTripAdvisor: 1.1,
	SourceFoursquare:  0.8,
}

// Score formula constants. These only guarantee that scores stay bounded and
// ordered sensibly; changing them changes ranking behavior system-wide, so
// they are overridable on the Consolidator rather than re-derived.
const (
	DefaultPopularityLogFactor    = 20.0
	DefaultPopularityRatingFactor = 10.0
	DefaultQualityRatingFactor    = 15.0
	DefaultQualityConsistency     = 0.3
	DefaultConsistencyPenalty     = 50.0
)

// Consolidated holds the derived fields computed from per-source rating slots.
type Consolidated struct {
	AggregateRating  *float64
	TotalReviewCount int
	PopularityScore  float64
	QualityScore     float64
}

// Consolidator turns per-source (rating, review count) slots into an
// aggregate rating, popularity score, and quality score. Pure and stateless;
// safe for concurrent use.
type Consolidator struct {
	// Weights maps each source to its blend weight. A present source with
	// no configured weight contributes at weight 1.0 so that every
	// populated rating influences the aggregate.
	Weights map[Source]float64

	PopularityLogFactor    float64
	PopularityRatingFactor float64
	QualityRatingFactor    float64
	QualityConsistency     float64
	ConsistencyPenalty     float64
}

// NewConsolidator returns a Consolidator with the default weights and
// formula constants.
func NewConsolidator() *Consolidator {
	return &Consolidator{
		Weights:                DefaultWeights,
		PopularityLogFactor:    DefaultPopularityLogFactor,
		PopularityRatingFactor: DefaultPopularityRatingFactor,
		QualityRatingFactor:    DefaultQualityRatingFactor,
		QualityConsistency:     DefaultQualityConsistency,
		ConsistencyPenalty:     DefaultConsistencyPenalty,
	}
}

// Consolidate computes the derived fields from the populated rating slots.
// Slots absent from the map are treated as absent, never as zero.
//
// Panics on a rating outside [0, 5]: observations are range-checked at the
// builder boundary, so an impossible value here is a bug upstream, not bad
// external data.
func (c *Consolidator) Consolidate(slots map[Source]SourceRating) Consolidated {
	var out Consolidated

	for src, slot := range slots {
		if slot.Rating < 0 || slot.Rating > 5 {
			panic(fmt.Sprintf("venue: consolidate: rating %v out of range for source %s", slot.Rating, src))
		}
		if slot.ReviewCount < 0 {
			panic(fmt.Sprintf("venue: consolidate: negative review count %d for source %s", slot.ReviewCount, src))
		}
		out.TotalReviewCount += slot.ReviewCount
	}

	if len(slots) == 0 {
		return out
	}

	agg := c.aggregateRating(slots)
	out.AggregateRating = &agg
	out.PopularityScore = c.popularityScore(out.TotalReviewCount, agg)
	out.QualityScore = c.qualityScore(slots)
	return out
}

// aggregateRating is the review-count-and-weight-weighted mean of the present
// ratings, rounded to 2 decimal places. When every present source has zero
// reviews, an unweighted mean of the ratings avoids the 0/0 case.
func (c *Consolidator) aggregateRating(slots map[Source]SourceRating) float64 {
	var num, den float64
	for src, slot := range slots {
		w := c.weight(src)
		num += slot.Rating * float64(slot.ReviewCount) * w
		den += float64(slot.ReviewCount) * w
	}

	if den == 0 {
		var sum float64
		for _, slot := range slots {
			sum += slot.Rating
		}
		return round2(sum / float64(len(slots)))
	}

	return round2(num / den)
}

// popularityScore rewards review volume on a logarithmic scale with a rating
// boost, clamped to [0, 100].
func (c *Consolidator) popularityScore(totalReviews int, aggregate float64) float64 {
	score := c.PopularityLogFactor*math.Log10(float64(totalReviews)+1) +
		c.PopularityRatingFactor*aggregate
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// qualityScore combines the unweighted mean rating with a consistency term:
// the lower the variance across sources, the higher the contribution. A
// single-source venue has zero variance and gets the maximal consistency
// term, intentionally — there is no contradicting signal to penalize.
func (c *Consolidator) qualityScore(slots map[Source]SourceRating) float64 {
	var sum float64
	for _, slot := range slots {
		sum += slot.Rating
	}
	avg := sum / float64(len(slots))

	var variance float64
	for _, slot := range slots {
		d := slot.Rating - avg
		variance += d * d
	}
	variance /= float64(len(slots))

	consistency := 100 - c.ConsistencyPenalty*variance
	if consistency < 0 {
		consistency = 0
	}

	return round1(avg*c.QualityRatingFactor + consistency*c.QualityConsistency)
}

func (c *Consolidator) weight(src Source) float64 {
	if w, ok := c.Weights[src]; ok {
		return w
	}
	return 1.0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
