package scrape

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-cli/internal/venue"
)

func TestMockSource_Deterministic(t *testing.T) {
	m := &MockSource{}

	first, err := m.Fetch(context.Background(), "downtown", "restaurant", "")
	require.NoError(t, err)
	second, err := m.Fetch(context.Background(), "downtown", "restaurant", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestMockSource_UnitsDiffer(t *testing.T) {
	m := &MockSource{}

	downtown, err := m.Fetch(context.Background(), "downtown", "restaurant", "")
	require.NoError(t, err)
	uptown, err := m.Fetch(context.Background(), "uptown", "restaurant", "")
	require.NoError(t, err)

	assert.NotEqual(t, downtown, uptown)
}

func TestMockSource_ObservationsPassValidation(t *testing.T) {
	m := &MockSource{Provider: venue.SourceYelp}
	builder := venue.NewBuilder(venue.NewConsolidator())

	obs, err := m.Fetch(context.Background(), "riverside", "cafe", "espresso")
	require.NoError(t, err)

	for _, o := range obs {
		assert.Equal(t, venue.SourceYelp, o.Source)
		assert.Equal(t, "cafe", o.Category)
		assert.Equal(t, "espresso", o.Subcategory)

		v, err := builder.Build(o, nil)
		require.NoError(t, err)
		assert.NotNil(t, v.AggregateRating)
	}
}
