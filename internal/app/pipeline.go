// Package app assembles the rendering pipeline shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"htmlpdf-service/internal/config"
	"htmlpdf-service/internal/logger"
	"htmlpdf-service/internal/pdf"
	"htmlpdf-service/internal/render"
	"htmlpdf-service/internal/store"
)

// Pipeline is the renderer plus rasterizer over one shared browser.
type Pipeline struct {
	Renderer   *render.Renderer
	Rasterizer *pdf.Rasterizer
	Browser    *pdf.Browser

	closeStore func()
	logger     *zap.Logger
}

// NewPipeline opens the template store and prepares the browser. The browser
// process itself starts on the first print.
func NewPipeline(ctx context.Context, cfg config.Config, log *zap.Logger) (*Pipeline, error) {
	log = logger.OrNop(log)
	st, closeStore, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("template store: %w", err)
	}

	browser := pdf.NewBrowser(pdf.BrowserConfig{
		ExecPath:  cfg.ChromePath,
		NoSandbox: cfg.ChromeNoSandbox,
		Logger:    log,
	})
	renderer := render.New(st, log)

	var opts []pdf.Option
	if cfg.S3Bucket != "" {
		mirror, err := pdf.NewS3Mirror(ctx, pdf.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("s3 mirror: %w", err)
		}
		opts = append(opts, pdf.WithMirror(mirror))
		log.Info("s3 mirror enabled", zap.String("bucket", cfg.S3Bucket), zap.String("prefix", cfg.S3Prefix))
	}

	rasterizer := pdf.NewRasterizer(pdf.Config{
		StaticRoot:     cfg.StaticRoot,
		URLPrefix:      cfg.StaticURLPrefix,
		RenderTimeout:  cfg.RenderTimeout,
		ThumbnailWidth: cfg.ThumbnailWidth,
		Logger:         log,
	}, renderer, browser, opts...)

	return &Pipeline{
		Renderer:   renderer,
		Rasterizer: rasterizer,
		Browser:    browser,
		closeStore: closeStore,
		logger:     log,
	}, nil
}

// Close shuts the browser down and releases the template store.
func (p *Pipeline) Close() {
	if err := p.Browser.Close(); err != nil {
		p.logger.Warn("browser close", zap.Error(err))
	}
	p.closeStore()
}
