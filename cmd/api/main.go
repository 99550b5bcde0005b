package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/mux"

	"recording-insights-go/internal/ai"
	"recording-insights-go/internal/api"
	"recording-insights-go/internal/config"
	"recording-insights-go/internal/logger"
	"recording-insights-go/internal/processor"
	"recording-insights-go/internal/progress"
	"recording-insights-go/internal/storage"
	"recording-insights-go/internal/transcoder"
	"recording-insights-go/internal/transcription"
	"recording-insights-go/internal/workerpool"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	log.WithField("service", "recording-insights-go").Info("starting service")

	store, err := storage.NewRecordStore(cfg.Storage.DataPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open record store")
	}
	defer store.Close()

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
	if err != nil {
		log.WithError(err).Fatal("failed to load AWS config")
	}
	downloader := storage.NewDownloader(s3.NewFromConfig(awsCfg), cfg.Storage.TempDir, logger.Component("storage"))

	// Pool construction failure only disables the parallel strategy.
	pool, err := workerpool.New(cfg.Processing.WorkerPoolSize, cfg.Processing.TaskTimeout, logger.Component("workerpool"))
	if err != nil {
		log.WithError(err).Warn("worker pool unavailable, parallel strategy disabled")
		pool = nil
	}

	proc := processor.New(processor.Deps{
		Store:       store,
		Downloader:  downloader,
		Transcoder:  transcoder.New(cfg.Storage.TempDir, logger.Component("transcoder")),
		Transcriber: transcription.NewClient(cfg.Transcription.APIURL, cfg.Transcription.APIKey, cfg.Transcription.Model, cfg.Transcription.Timeout, logger.Component("transcription")),
		Analyzer:    ai.NewClient(cfg.AI.GatewayURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout, logger.Component("ai")),
		Pool:        pool,
		Log:         logger.Component("processor"),
		RetryDelay:  cfg.Processing.RetryDelay,
	})

	hub := progress.NewHub(logger.Component("progress-hub"))
	handlers := api.NewHandlers(proc, store, hub, cfg.Processing.BatchConcurrency)

	router := mux.NewRouter()
	handlers.Register(router)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
	log.Info("server exited")
}
