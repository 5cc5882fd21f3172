package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plcoste/syndic/internal/allocation"
	"github.com/plcoste/syndic/internal/archive"
	"github.com/plcoste/syndic/internal/config"
	"github.com/plcoste/syndic/internal/fiscal"
	"github.com/plcoste/syndic/internal/gcs"
	"github.com/plcoste/syndic/internal/importer"
	"github.com/plcoste/syndic/internal/jobs"
	"github.com/plcoste/syndic/internal/jobs/inmemory"
	"github.com/plcoste/syndic/internal/logger"
	"github.com/plcoste/syndic/internal/store/memory"
)

func main() {
	log := logger.New("worker")

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// In production this queue would be replaced with Cloud Tasks or Pub/Sub,
	// and the store with a shared database. The standalone worker mainly
	// exists to exercise the import pipeline in isolation.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueSize, jobStore)

	db := memory.New()
	fiscalSvc := fiscal.NewService(db, db, db, db, db, allocation.NewDefault(), archive.Discard{}, log)
	importSvc := importer.NewService(gcs.NewClient(), fiscalSvc, log)

	log.Info().Msg("Starting worker service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job *jobs.ImportStatementJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("building_id", job.BuildingID).
			Str("gcs_uri", job.GCSURI).
			Msg("Processing statement import")

		res, err := importSvc.ImportFromGCS(ctx, job.BuildingID, job.GCSURI)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", job.JobID).
				Str("building_id", job.BuildingID).
				Msg("Statement import failed")
			return err
		}
		job.Imported = res.Imported
		job.Years = res.Years

		log.Info().
			Str("job_id", job.JobID).
			Int("imported", res.Imported).
			Msg("Statement import completed")

		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
