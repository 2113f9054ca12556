package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/venue-cli/internal/resilience"
	"github.com/sells-group/venue-cli/internal/scrape"
)

var (
	scrapePlanPath   string
	scrapeRegions    []string
	scrapeCategories []string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a full scrape across regions and categories",
	Long:  "Enumerates (region, category) work units from a plan file or flags, fetches venue observations from the configured source, and imports them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		regions, categories, err := resolvePlan()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		src, err := initSource()
		if err != nil {
			return err
		}

		orch := scrape.NewOrchestrator(src, st,
			scrape.WithBatchSize(cfg.Scrape.BatchSize),
			scrape.WithPacer(scrape.FixedPacer{Delay: time.Duration(cfg.Scrape.BatchDelaySecs) * time.Second}),
			scrape.WithFetchTimeout(time.Duration(cfg.Scrape.FetchTimeoutSecs)*time.Second),
			scrape.WithRetryPolicy(resilience.Policy{Attempts: cfg.Scrape.FetchRetries + 1}),
		)

		summary, err := orch.ScrapeAll(ctx, regions, categories)
		if err != nil {
			return err
		}

		if len(summary.RegionsFailed) > 0 {
			zap.L().Warn("some regions failed entirely",
				zap.Strings("regions", summary.RegionsFailed))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// resolvePlan prefers explicit region/category flags; otherwise it loads
// the configured plan file.
func resolvePlan() ([]string, []scrape.Category, error) {
	if len(scrapeRegions) > 0 && len(scrapeCategories) > 0 {
		cats := make([]scrape.Category, len(scrapeCategories))
		for i, name := range scrapeCategories {
			cats[i] = scrape.Category{Name: name}
		}
		return scrapeRegions, cats, nil
	}

	path := scrapePlanPath
	if path == "" {
		path = cfg.Scrape.Plan
	}
	plan, err := scrape.LoadPlan(path)
	if err != nil {
		return nil, nil, err
	}
	return plan.Regions, plan.Categories, nil
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapePlanPath, "plan", "", "path to scrape plan YAML (default from config)")
	scrapeCmd.Flags().StringSliceVar(&scrapeRegions, "regions", nil, "regions to scrape (overrides plan)")
	scrapeCmd.Flags().StringSliceVar(&scrapeCategories, "categories", nil, "categories to scrape (overrides plan)")
	rootCmd.AddCommand(scrapeCmd)
}
