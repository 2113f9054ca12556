package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/venue-cli/internal/config"
	"github.com/sells-group/venue-cli/internal/scrape"
)

func TestResolvePlan_FlagsOverridePlanFile(t *testing.T) {
	scrapeRegions = []string{"downtown", "uptown"}
	scrapeCategories = []string{"restaurant"}
	t.Cleanup(func() { scrapeRegions, scrapeCategories = nil, nil })

	regions, categories, err := resolvePlan()
	require.NoError(t, err)

	assert.Equal(t, []string{"downtown", "uptown"}, regions)
	assert.Equal(t, []scrape.Category{{Name: "restaurant"}}, categories)
}

func TestResolvePlan_FromConfiguredFile(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(`
regions: [riverside]
categories:
  - name: cafe
    subcategories: [espresso]
`), 0o644))

	cfg = &config.Config{Scrape: config.ScrapeConfig{Plan: planPath}}
	scrapeRegions, scrapeCategories = nil, nil

	regions, categories, err := resolvePlan()
	require.NoError(t, err)

	assert.Equal(t, []string{"riverside"}, regions)
	require.Len(t, categories, 1)
	assert.Equal(t, "cafe", categories[0].Name)
	assert.Equal(t, []string{"espresso"}, categories[0].Subcategories)
}

func TestResolvePlan_MissingFile(t *testing.T) {
	cfg = &config.Config{Scrape: config.ScrapeConfig{Plan: filepath.Join(t.TempDir(), "nope.yaml")}}
	scrapeRegions, scrapeCategories = nil, nil

	_, _, err := resolvePlan()
	assert.Error(t, err)
}
