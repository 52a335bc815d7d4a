package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/api/handlers"
	mw "github.com/mnemo-dev/mnemo/internal/api/middleware"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
	"github.com/mnemo-dev/mnemo/internal/graph"
	"github.com/mnemo-dev/mnemo/internal/service"
	"github.com/mnemo-dev/mnemo/internal/store"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Scheduler *service.Scheduler
	Bus       *service.Bus

	store        *store.Store
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(st *store.Store, logger *zap.Logger) *App {
	dim := config.EmbeddingDim()

	// The embedding backend comes up lazily on first use so a slow or
	// absent provider never blocks startup.
	embedder := embedding.NewLazy(dim, func() (embedding.Client, error) {
		return embedding.NewClient(embedding.Config{
			Provider:  config.EmbeddingProvider(),
			Dim:       dim,
			APIKey:    config.OpenAIAPIKey(),
			OllamaURL: config.OllamaURL(),
			Model:     config.EmbeddingModel(),
		})
	})
	logger.Info("embedding backend configured",
		zap.String("provider", config.EmbeddingProvider()),
		zap.Int("dim", dim))

	// Engine wiring
	vectors := service.NewVectorIndex(dim, st)
	g := graph.New(st)
	bus := service.NewBus(config.EventBufferSize(), logger)
	memorySvc := service.NewMemoryService(st, vectors, embedder, bus, logger)
	abstractor := service.NewAbstractor(st, memorySvc, g, bus, logger)
	retriever := service.NewRetriever(st, g, vectors, embedder, logger)
	extractor := service.NewExtractor(memorySvc, g, vectors, embedder, logger)
	learner := service.NewLearner(memorySvc, bus, logger)
	scheduler := service.NewScheduler(st, memorySvc, abstractor, bus, service.SchedulerConfig{
		Interval:       config.SweepInterval(),
		PruneThreshold: config.PruneThreshold(),
		PruneGrace:     config.PruneGrace(),
	}, logger)

	if err := memorySvc.RebuildVectorIndex(context.Background()); err != nil {
		logger.Warn("vector index rebuild failed", zap.Error(err))
	}

	// Handlers
	memoryHandler := handlers.NewMemoryHandler(memorySvc)
	retrievalHandler := handlers.NewRetrievalHandler(retriever, extractor)
	feedbackHandler := handlers.NewFeedbackHandler(learner)
	relationshipHandler := handlers.NewRelationshipHandler(g)
	maintenanceHandler := handlers.NewMaintenanceHandler(scheduler)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Scheduler: scheduler,
		Bus:       bus,
		store:     st,
		startTime: time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/memories", func(r chi.Router) {
			r.Post("/", memoryHandler.Create)
			r.Get("/search", memoryHandler.Search)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoryHandler.GetByID)
				r.Patch("/", memoryHandler.Patch)
				r.Delete("/", memoryHandler.Delete)
				r.Get("/relationships", relationshipHandler.ListForMemory)
			})
		})

		r.Post("/retrieve", retrievalHandler.Retrieve)
		r.Post("/inject", retrievalHandler.Inject)
		r.Post("/extract", retrievalHandler.Extract)
		r.Post("/feedback", feedbackHandler.Create)

		r.Route("/relationships", func(r chi.Router) {
			r.Post("/", relationshipHandler.Create)
			r.Delete("/", relationshipHandler.Delete)
		})

		r.Post("/sweep", maintenanceHandler.Sweep)
	})

	return app
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":   "ok",
			"data_dir": app.store.Dir(),
		})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		counts := map[string]int{}
		for _, t := range domain.MemoryTypes() {
			counts[string(t)] = app.store.CountByType(r.Context(), t)
		}

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"memories":       counts,
			"edges":          len(app.store.AllEdges(r.Context())),
			"events_dropped": app.Bus.Dropped(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
