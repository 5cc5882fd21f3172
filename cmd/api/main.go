package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plcoste/syndic/internal/allocation"
	"github.com/plcoste/syndic/internal/api/handlers"
	"github.com/plcoste/syndic/internal/api/middleware"
	"github.com/plcoste/syndic/internal/archive"
	archiveBQ "github.com/plcoste/syndic/internal/archive/bigquery"
	"github.com/plcoste/syndic/internal/cache"
	"github.com/plcoste/syndic/internal/config"
	"github.com/plcoste/syndic/internal/fiscal"
	"github.com/plcoste/syndic/internal/gcs"
	"github.com/plcoste/syndic/internal/importer"
	"github.com/plcoste/syndic/internal/jobs"
	"github.com/plcoste/syndic/internal/jobs/inmemory"
	"github.com/plcoste/syndic/internal/ledger"
	"github.com/plcoste/syndic/internal/logger"
	"github.com/plcoste/syndic/internal/metering"
	"github.com/plcoste/syndic/internal/store/memory"
)

func main() {
	log := logger.New("api")

	cfg, err := config.LoadAPI()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.GCSBucket == "" {
		log.Warn().Msg("No GCS bucket configured - statement uploads will be disabled")
	}

	ctx := context.Background()

	// Storage and archive.
	db := memory.NewWithLockWait(cfg.LockWait)

	var exporter archive.Exporter = archive.Discard{}
	if cfg.ArchiveProject != "" {
		bq, err := archiveBQ.NewExporter(ctx, cfg.ArchiveProject, cfg.ArchiveDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive exporter")
		}
		defer bq.Close()
		exporter = bq
	}

	// Allocation strategies.
	var attributor allocation.DepositAttributor = allocation.NameAttributor{}
	if cfg.UseGemini {
		attributor = allocation.NewGeminiAttributor(cfg.GeminiModel)
		log.Info().Msg("Model-assisted deposit attribution enabled")
	}
	alloc := allocation.New(allocation.DefaultFeeClassifier(), attributor)

	// Services.
	fiscalSvc := fiscal.NewService(db, db, db, db, db, alloc, exporter, log)
	registry := ledger.NewRegistry(db, db, db)
	meteringSvc := metering.NewService(db, db, db)

	var situationCache cache.SituationCache
	if cfg.RedisAddr != "" {
		situationCache = cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL, log)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis situation cache")
	} else {
		situationCache = cache.NewRAMCache(cfg.CacheTTL)
	}

	// Statement import pipeline.
	storageSvc := gcs.NewClient()
	importSvc := importer.NewService(storageSvc, fiscalSvc, log)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	importHandler := func(ctx context.Context, job *jobs.ImportStatementJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("building_id", job.BuildingID).
			Str("gcs_uri", job.GCSURI).
			Msg("Processing statement import")

		res, err := importSvc.ImportFromGCS(ctx, job.BuildingID, job.GCSURI)
		if err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("Statement import failed")
			return err
		}
		job.Imported = res.Imported
		job.Years = res.Years
		for _, year := range res.Years {
			situationCache.Invalidate(job.BuildingID, year)
		}
		return nil
	}

	if err := jobQueue.Start(workerCtx, importHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start import consumer")
	}

	// Handlers and routes.
	buildingsHandler := handlers.NewBuildingsHandler(db, log)
	ownersHandler := handlers.NewOwnersHandler(registry, log)
	ledgerHandler := handlers.NewLedgerHandler(fiscalSvc, situationCache, log)
	metersHandler := handlers.NewMetersHandler(meteringSvc, log)
	statementsHandler := handlers.NewStatementsHandler(storageSvc, jobQueue, cfg.GCSBucket, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/buildings", buildingsHandler.CreateBuilding)
	mux.HandleFunc("GET /api/buildings/{id}", buildingsHandler.GetBuilding)
	mux.HandleFunc("POST /api/buildings/{id}/owners", ownersHandler.CreateOwner)
	mux.HandleFunc("GET /api/buildings/{id}/shares", ownersHandler.GetAvailableShares)
	mux.HandleFunc("PATCH /api/owners/{id}/shares", ownersHandler.SetShares)

	mux.HandleFunc("GET /api/buildings/{id}/situation", ledgerHandler.GetSituation)
	mux.HandleFunc("POST /api/buildings/{id}/transactions", ledgerHandler.CreateTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", ledgerHandler.PatchTransaction)
	mux.HandleFunc("POST /api/buildings/{id}/exercises", ledgerHandler.CreateExercise)
	mux.HandleFunc("POST /api/exercises/{id}/close", ledgerHandler.CloseExercise)

	mux.HandleFunc("POST /api/buildings/{id}/meters", metersHandler.CreateMeter)
	mux.HandleFunc("DELETE /api/meters/{id}", metersHandler.DeleteMeter)
	mux.HandleFunc("POST /api/meters/{id}/readings", metersHandler.RecordReading)
	mux.HandleFunc("GET /api/meters/{id}/loss", metersHandler.GetLoss)

	mux.HandleFunc("POST /api/buildings/{id}/statements", statementsHandler.UploadStatement)
	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
