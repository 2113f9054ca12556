package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/venue-cli/internal/importer"
	"github.com/sells-group/venue-cli/internal/resilience"
	"github.com/sells-group/venue-cli/internal/scrape"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scrape triggers and run history over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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

		var wg sync.WaitGroup
		r := newRouter(ctx, &wg, st, orch)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Let a scrape kicked off over HTTP finish its drain.
		wg.Wait()
		return nil
	},
}

type scrapeRequest struct {
	Regions    []string `json:"regions"`
	Categories []string `json:"categories"`
}

func newRouter(ctx context.Context, wg *sync.WaitGroup, st importer.Store, orch *scrape.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/scrape", func(w http.ResponseWriter, req *http.Request) {
		// An empty body means scrape the configured plan.
		var body scrapeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		regions := body.Regions
		categories := make([]scrape.Category, len(body.Categories))
		for i, name := range body.Categories {
			categories[i] = scrape.Category{Name: name}
		}

		if len(regions) == 0 || len(categories) == 0 {
			plan, err := scrape.LoadPlan(cfg.Scrape.Plan)
			if err != nil {
				http.Error(w, `{"error":"no regions/categories given and no plan file"}`, http.StatusBadRequest)
				return
			}
			if len(regions) == 0 {
				regions = plan.Regions
			}
			if len(categories) == 0 {
				categories = plan.Categories
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := orch.ScrapeAll(ctx, regions, categories)
			if err != nil {
				zap.L().Error("scrape failed to start", zap.Error(err))
				return
			}
			zap.L().Info("scrape complete",
				zap.Int("total_venues", summary.TotalVenues),
				zap.Strings("regions_failed", summary.RegionsFailed),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":  "accepted",
			"regions": regions,
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListRuns(req.Context(), 100)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			http.Error(w, `{"error":"list runs failed"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
