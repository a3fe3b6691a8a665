package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/export"
	"github.com/joseph-ayodele/docproc/internal/ingest"
	"github.com/joseph-ayodele/docproc/internal/ocr"
	"github.com/joseph-ayodele/docproc/internal/pipeline"
	"github.com/joseph-ayodele/docproc/internal/queue"
	"github.com/joseph-ayodele/docproc/internal/repository"
	"github.com/joseph-ayodele/docproc/internal/server"
	"github.com/joseph-ayodele/docproc/internal/validation"
	"github.com/joseph-ayodele/docproc/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("docprocd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	// The sqlite handle backs queue durability always, and the document
	// store unless postgres is configured.
	db, err := repository.OpenSQLite(cfg.Store.SQLitePath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var docs repository.DocumentRepository
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := repository.OpenPostgres(ctx, repository.PGConfig{
			DSN:             cfg.Store.DSN,
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			MaxConnLifetime: cfg.Store.MaxConnLifetime,
			MaxConnIdleTime: cfg.Store.MaxConnIdleTime,
			DialTimeout:     cfg.Store.DialTimeout,
		}, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := repository.HealthCheck(ctx, pool, cfg.Store.DialTimeout, logger); err != nil {
			return err
		}
		docs, err = repository.NewPGDocumentRepository(ctx, pool, logger)
		if err != nil {
			return err
		}
	default:
		docs, err = repository.NewSQLiteDocumentRepository(db, logger)
		if err != nil {
			return err
		}
	}

	q, err := queue.New(db, constants.ChannelProcessing, logger,
		queue.WithDefaults(queue.SubmitOptions{
			MaxAttempts: cfg.Queue.MaxAttempts,
			Backoff: queue.BackoffPolicy{
				InitialDelay: cfg.Queue.BackoffDelay,
				Multiplier:   cfg.Queue.BackoffMult,
			},
		}),
		queue.WithPollInterval(cfg.Queue.PollInterval),
	)
	if err != nil {
		return err
	}
	dlq, err := queue.NewDeadLetter(db, constants.ChannelDead, logger)
	if err != nil {
		return err
	}

	validator, err := validation.NewInvoiceValidator()
	if err != nil {
		return err
	}
	recognizer := ocr.NewSimulator(
		ocr.WithLatency(cfg.OCR.SimulatedLatency),
	)
	pipe := pipeline.New(logger, docs, recognizer, validator,
		pipeline.WithConfidenceThreshold(cfg.OCR.ConfidenceThreshold),
		pipeline.WithSourceRemoval(cfg.Upload.RemoveOnSuccess),
	)

	runtime := worker.NewRuntime(q, dlq, pipe, logger,
		worker.WithWorkers(cfg.Queue.Workers),
	)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		runtime.Run(ctx)
	}()

	gateway := ingest.NewGateway(docs, q, logger)
	exportSvc := export.NewService(docs, logger)
	srv := server.New(logger, gateway, docs, exportSvc, dlq, cfg.Server, cfg.Upload)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	<-workersDone
	logger.Info("stopped")
	return nil
}
