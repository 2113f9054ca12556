package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestConsolidate_NoSources(t *testing.T) {
	c := NewConsolidator()

	out := c.Consolidate(nil)

	assert.Nil(t, out.AggregateRating)
	assert.Equal(t, 0, out.TotalReviewCount)
	assert.Equal(t, 0.0, out.PopularityScore)
	assert.Equal(t, 0.0, out.QualityScore)
}

func TestConsolidate_WeightedScenario(t *testing.T) {
	// google 4.6/500 (w=1.2) + yelp 4.2/200 (w=1.0):
	// (4.6*500*1.2 + 4.2*200) / (500*1.2 + 200) = 3600/800 = 4.50
	c := NewConsolidator()

	out := c.Consolidate(map[Source]SourceRating{
		SourceGoogle: {Rating: 4.6, ReviewCount: 500},
		SourceYelp:   {Rating: 4.2, ReviewCount: 200},
	})

	require.NotNil(t, out.AggregateRating)
	assert.InDelta(t, 4.5, *out.AggregateRating, 0.011)
	assert.Equal(t, 700, out.TotalReviewCount)
}

func TestConsolidate_AggregateWithinRatingBounds(t *testing.T) {
	c := NewConsolidator()

	sets := []map[Source]SourceRating{
		{SourceGoogle: {Rating: 3.1, ReviewCount: 10}},
		{SourceGoogle: {Rating: 5, ReviewCount: 1}, SourceYelp: {Rating: 1, ReviewCount: 1000}},
		{
			SourceGoogle:      {Rating: 4.4, ReviewCount: 12},
			SourceYelp:        {Rating: 3.9, ReviewCount: 80},
			SourceTripAdvisor: {Rating: 4.8, ReviewCount: 3},
			SourceFoursquare:  {Rating: 2.2, ReviewCount: 40},
		},
	}

	for _, slots := range sets {
		out := c.Consolidate(slots)
		require.NotNil(t, out.AggregateRating)

		lo, hi := 5.0, 0.0
		for _, s := range slots {
			if s.Rating < lo {
				lo = s.Rating
			}
			if s.Rating > hi {
				hi = s.Rating
			}
		}
		assert.GreaterOrEqual(t, *out.AggregateRating, lo-0.005)
		assert.LessOrEqual(t, *out.AggregateRating, hi+0.005)
	}
}

func TestConsolidate_AllZeroReviewsFallsBackToMean(t *testing.T) {
	c := NewConsolidator()

	out := c.Consolidate(map[Source]SourceRating{
		SourceGoogle: {Rating: 4.0},
		SourceYelp:   {Rating: 3.0},
	})

	require.NotNil(t, out.AggregateRating)
	assert.Equal(t, 3.5, *out.AggregateRating)
	assert.Equal(t, 0, out.TotalReviewCount)
}

func TestConsolidate_TotalReviewCountIsPlainSum(t *testing.T) {
	c := NewConsolidator()

	out := c.Consolidate(map[Source]SourceRating{
		SourceGoogle:     {Rating: 4.5, ReviewCount: 100},
		SourceYelp:       {Rating: 4.0, ReviewCount: 50},
		SourceFoursquare: {Rating: 3.0},
	})

	assert.Equal(t, 150, out.TotalReviewCount)
}

func TestConsolidate_PopularityMonotonicInReviews(t *testing.T) {
	c := NewConsolidator()

	prev := -1.0
	for _, n := range []int{0, 1, 10, 100, 1000, 100000, 10000000} {
		out := c.Consolidate(map[Source]SourceRating{
			SourceGoogle: {Rating: 4.0, ReviewCount: n},
		})
		assert.GreaterOrEqual(t, out.PopularityScore, prev, "reviews=%d", n)
		assert.LessOrEqual(t, out.PopularityScore, 100.0)
		prev = out.PopularityScore
	}
}

func TestConsolidate_PopularityCappedAt100(t *testing.T) {
	c := NewConsolidator()

	out := c.Consolidate(map[Source]SourceRating{
		SourceGoogle: {Rating: 5.0, ReviewCount: 10_000_000},
	})

	assert.Equal(t, 100.0, out.PopularityScore)
}

func TestConsolidate_SingleSourceMaximalConsistency(t *testing.T) {
	// variance = 0 for a single source, so consistency contributes the
	// full 100 * 0.3 on top of avg * 15.
	c := NewConsolidator()

	out := c.Consolidate(map[Source]SourceRating{
		SourceYelp: {Rating: 4.0, ReviewCount: 25},
	})

	assert.InDelta(t, 4.0*15+100*0.3, out.QualityScore, 0.051)
}

func TestConsolidate_DivergentSourcesScoreLowerQuality(t *testing.T) {
	c := NewConsolidator()

	consistent := c.Consolidate(map[Source]SourceRating{
		SourceGoogle: {Rating: 3.5, ReviewCount: 10},
		SourceYelp:   {Rating: 3.5, ReviewCount: 10},
	})
	divergent := c.Consolidate(map[Source]SourceRating{
		SourceGoogle: {Rating: 5.0, ReviewCount: 10},
		SourceYelp:   {Rating: 2.0, ReviewCount: 10},
	})

	assert.Greater(t, consistent.QualityScore, divergent.QualityScore)
}

func TestConsolidate_UnknownSourceGetsUnitWeight(t *testing.T) {
	c := NewConsolidator()

	out := c.Consolidate(map[Source]SourceRating{
		SourceOpenTable: {Rating: 4.2, ReviewCount: 30},
	})

	require.NotNil(t, out.AggregateRating)
	assert.Equal(t, 4.2, *out.AggregateRating)
	assert.Equal(t, 30, out.TotalReviewCount)
}

func TestConsolidate_CustomWeights(t *testing.T) {
	c := NewConsolidator()
	c.Weights = map[Source]float64{
		SourceGoogle: 0.0, // ignore google reviews in the blend
		SourceYelp:   1.0,
	}

	out := c.Consolidate(map[Source]SourceRating{
		SourceGoogle: {Rating: 1.0, ReviewCount: 1000},
		SourceYelp:   {Rating: 5.0, ReviewCount: 10},
	})

	require.NotNil(t, out.AggregateRating)
	assert.Equal(t, 5.0, *out.AggregateRating)
}

func TestConsolidate_PanicsOnImpossibleRating(t *testing.T) {
	c := NewConsolidator()

	assert.Panics(t, func() {
		c.Consolidate(map[Source]SourceRating{
			SourceGoogle: {Rating: 7.2, ReviewCount: 1},
		})
	})
	assert.Panics(t, func() {
		c.Consolidate(map[Source]SourceRating{
			SourceGoogle: {Rating: 4.0, ReviewCount: -1},
		})
	})
}

func TestConsolidate_OrderIndependent(t *testing.T) {
	c := NewConsolidator()

	a := c.Consolidate(map[Source]SourceRating{
		SourceGoogle:      {Rating: 4.5, ReviewCount: 100},
		SourceYelp:        {Rating: 4.0, ReviewCount: 50},
		SourceTripAdvisor: {Rating: 3.5, ReviewCount: 25},
	})
	b := c.Consolidate(map[Source]SourceRating{
		SourceTripAdvisor: {Rating: 3.5, ReviewCount: 25},
		SourceGoogle:      {Rating: 4.5, ReviewCount: 100},
		SourceYelp:        {Rating: 4.0, ReviewCount: 50},
	})

	assert.Equal(t, a.TotalReviewCount, b.TotalReviewCount)
	assert.Equal(t, *a.AggregateRating, *b.AggregateRating)
	assert.Equal(t, a.PopularityScore, b.PopularityScore)
	assert.Equal(t, a.QualityScore, b.QualityScore)
}
