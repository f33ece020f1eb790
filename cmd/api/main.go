package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	api "htmlpdf-service/internal/api"
	"htmlpdf-service/internal/app"
	"htmlpdf-service/internal/config"
	"htmlpdf-service/internal/logger"
	"htmlpdf-service/internal/queue"
	"htmlpdf-service/internal/ratelimit"
	workerproc "htmlpdf-service/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.New(logger.ForEnvironment(cfg.Env, cfg.LogLevel, cfg.LogFormat)).Named("htmlpdf-api")
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
	limiter := ratelimit.NewTokenBucket(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	var wg sync.WaitGroup
	if cfg.EmbeddedWorker {
		processor := workerproc.NewProcessor(cfg, q, log)
		processor.RegisterGenerator(pipeline.Rasterizer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := processor.Run(ctx); err != nil {
				log.Error("embedded consumer stopped", zap.Error(err))
			}
		}()
	}

	server := api.New(cfg, pipeline.Renderer, pipeline.Rasterizer, q, limiter, log)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("api listening", zap.String("port", cfg.HTTPPort), zap.Bool("embedded_worker", cfg.EmbeddedWorker))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	wg.Wait()
	log.Info("api stopped")
}
