package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"htmlpdf-service/internal/app"
	"htmlpdf-service/internal/config"
	"htmlpdf-service/internal/logger"
	"htmlpdf-service/internal/queue"
	"htmlpdf-service/internal/telemetry"
	workerproc "htmlpdf-service/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.New(logger.ForEnvironment(cfg.Env, cfg.LogLevel, cfg.LogFormat)).Named("htmlpdf-worker")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	pipeline, err := app.NewPipeline(ctx, cfg, log)
	if err != nil {
		log.Fatal("init pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	client := queue.NewRedisClient(cfg)
	defer client.Close()
	q := queue.NewRedisQueue(client, cfg, log)

	processor := workerproc.NewProcessor(cfg, q, log)
	processor.RegisterGenerator(pipeline.Rasterizer)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Duration("poll_timeout", cfg.QueuePollTimeout),
		zap.Duration("backoff", cfg.ConsumerBackoff))
	if err := processor.Run(ctx); err != nil {
		log.Error("worker stopped", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = metricsServer.Shutdown(shutdownCtx)
}
