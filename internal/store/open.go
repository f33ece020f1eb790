package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"htmlpdf-service/internal/config"
	"htmlpdf-service/internal/logger"
	"htmlpdf-service/internal/models"
)

// Open builds the template store selected by cfg.TemplateStore ("memory" or
// "postgres") and seeds it from cfg.TemplateSeedFile when set. The returned
// func releases the store.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (TemplateStore, func(), error) {
	log = logger.OrNop(log).Named("store")
	kind := strings.ToLower(strings.TrimSpace(cfg.TemplateStore))

	var (
		st      TemplateStore
		put     func(context.Context, models.Template) error
		closeFn = func() {}
	)
	switch kind {
	case "", "memory":
		m := NewMemory()
		st, put = m, m.Put
	case "postgres":
		pg, err := NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		st, put, closeFn = pg, pg.Put, pg.Close
	default:
		return nil, nil, fmt.Errorf("unknown template store %q", cfg.TemplateStore)
	}

	if cfg.TemplateSeedFile != "" {
		n, err := seedFile(ctx, put, cfg.TemplateSeedFile)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		log.Info("templates seeded", zap.Int("count", n), zap.String("file", cfg.TemplateSeedFile))
	}
	log.Info("template store ready", zap.String("kind", kind))
	return st, closeFn, nil
}
