// Package worker consumes queued PDF jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/config"
	"htmlpdf-service/internal/logger"
	"htmlpdf-service/internal/models"
	"htmlpdf-service/internal/queue"
	"htmlpdf-service/internal/telemetry"
)

// Handler renders one job payload.
type Handler func(ctx context.Context, payload []byte) (models.GeneratePdfResult, error)

// Processor drives the consumer loops. Each loop handles one job at a time, so
// Concurrency bounds how many rasterizations run at once.
type Processor struct {
	queue       *queue.RedisQueue
	handlers    map[string]Handler
	concurrency int
	backoff     time.Duration
	backoffMax  time.Duration
	logger      *zap.Logger
}

func NewProcessor(cfg config.Config, q *queue.RedisQueue, log *zap.Logger) *Processor {
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	backoff := cfg.ConsumerBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	backoffMax := cfg.ConsumerBackoffMax
	if backoffMax < backoff {
		backoffMax = backoff
	}
	return &Processor{
		queue:       q,
		handlers:    make(map[string]Handler),
		concurrency: concurrency,
		backoff:     backoff,
		backoffMax:  backoffMax,
		logger:      logger.OrNop(log).Named("worker"),
	}
}

// RegisterHandler binds a handler to a job mode. Register before Run.
func (p *Processor) RegisterHandler(mode string, handler Handler) {
	if mode == "" || handler == nil {
		return
	}
	p.handlers[mode] = handler
}

// Run starts the consumer loops and blocks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("consumer started", zap.Int("concurrency", p.concurrency))
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		log := p.logger.With(zap.Int("loop", i))
		g.Go(func() error {
			p.loop(ctx, log)
			return nil
		})
	}
	err := g.Wait()
	p.logger.Info("consumer stopped")
	return err
}

func (p *Processor) loop(ctx context.Context, log *zap.Logger) {
	failures := 0
	for ctx.Err() == nil {
		err := p.step(ctx)
		if err == nil {
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			return
		}
		failures++
		telemetry.ConsumerErrors.Inc()
		wait := backoffWithJitter(p.backoff, p.backoffMax, failures)
		log.Error("consumer loop error", zap.Error(err), zap.Int("failures", failures), zap.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// step waits for one entry and processes it. Only infrastructure failures are
// returned; job failures are recorded on the job.
func (p *Processor) step(ctx context.Context) error {
	if depth, err := p.queue.Depth(ctx); err == nil {
		telemetry.QueueDepthGauge.Set(float64(depth))
	}
	entry, err := p.queue.Dequeue(ctx)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	return p.Process(ctx, entry.ID)
}

// Process runs a single job through queued -> processing -> done/error.
func (p *Processor) Process(ctx context.Context, id string) error {
	log := p.logger.With(zap.String("job_id", id))

	// The entry has left the list by now, so a failed claim must put it back.
	writeCtx := context.WithoutCancel(ctx)
	if err := p.queue.MarkProcessing(ctx, id); err != nil {
		if errors.Is(err, queue.ErrStaleTransition) || apperr.Is(err, apperr.KindNotFound) {
			log.Warn("skipping job", zap.Error(err))
			return nil
		}
		if rqErr := p.queue.Requeue(writeCtx, id); rqErr != nil {
			log.Error("requeue failed, job stays queued until its record expires", zap.Error(rqErr))
		}
		return err
	}
	job, err := p.queue.Get(ctx, id)
	if err != nil {
		if markErr := p.queue.MarkError(writeCtx, id, "load job: "+err.Error()); markErr != nil {
			log.Error("job left processing", zap.Error(markErr))
		}
		return err
	}
	if job == nil {
		log.Warn("job record expired while processing")
		return nil
	}

	telemetry.InFlightGauge.Inc()
	started := time.Now()
	res, runErr := p.runJob(ctx, *job)
	telemetry.InFlightGauge.Dec()

	// The outcome is recorded even when shutdown interrupted the render.
	if runErr != nil {
		telemetry.JobsErrored.Inc()
		log.Warn("job failed",
			zap.String("mode", job.Mode),
			zap.String("kind", string(apperr.KindOf(runErr))),
			zap.Error(runErr))
		return p.queue.MarkError(writeCtx, id, runErr.Error())
	}
	telemetry.JobsDone.Inc()
	log.Info("job done",
		zap.String("mode", job.Mode),
		zap.String("url", res.URL),
		zap.Duration("duration", time.Since(started)))
	return p.queue.MarkDone(writeCtx, id, res)
}

// runJob dispatches on mode. A panicking handler fails only its own job.
func (p *Processor) runJob(ctx context.Context, job models.Job) (res models.GeneratePdfResult, err error) {
	handler, ok := p.handlers[job.Mode]
	if !ok {
		return res, apperr.Validation("no handler registered for mode %q", job.Mode)
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job.Payload)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max || exp > float64(math.MaxInt64) {
		wait = max
	}
	if wait < 2 {
		return wait
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
