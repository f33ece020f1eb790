// Package pdf rasterizes rendered HTML into date-partitioned PDF files and
// keeps a catalog of what has been generated.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/logger"
	"htmlpdf-service/internal/models"
	"htmlpdf-service/internal/render"
	"htmlpdf-service/internal/telemetry"
)

const (
	pdfDirName    = "PDF"
	dateKeyLayout = "20060102"
	rawPrefix     = "raw"
)

// Config controls where files land and how long a print may run.
type Config struct {
	StaticRoot string
	URLPrefix  string
	// RenderTimeout bounds one rasterization; zero leaves it unbounded.
	RenderTimeout  time.Duration
	ThumbnailWidth int
	Logger         *zap.Logger
}

// Rasterizer produces PDFs from templates or raw HTML.
type Rasterizer struct {
	cfg      Config
	renderer *render.Renderer
	printer  Printer
	index    *Index
	mirror   Mirror
	now      func() time.Time
	logger   *zap.Logger
}

// Option customizes a Rasterizer.
type Option func(*Rasterizer)

// WithMirror uploads every generated PDF to m as well.
func WithMirror(m Mirror) Option {
	return func(r *Rasterizer) { r.mirror = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Rasterizer) { r.now = now }
}

func NewRasterizer(cfg Config, renderer *render.Renderer, printer Printer, opts ...Option) *Rasterizer {
	if cfg.StaticRoot == "" {
		cfg.StaticRoot = "./static"
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/static"
	}
	r := &Rasterizer{
		cfg:      cfg,
		renderer: renderer,
		printer:  printer,
		index:    NewIndex(filepath.Join(cfg.StaticRoot, pdfDirName)),
		now:      time.Now,
		logger:   logger.OrNop(cfg.Logger).Named("rasterizer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PDFRoot is <staticRoot>/PDF.
func (r *Rasterizer) PDFRoot() string {
	return filepath.Join(r.cfg.StaticRoot, pdfDirName)
}

// GeneratePdf renders a stored template and rasterizes it.
func (r *Rasterizer) GeneratePdf(ctx context.Context, req models.GenerateRequest) (models.GeneratePdfResult, error) {
	tpl, err := r.renderer.Template(ctx, req.TemplateID)
	if err != nil {
		return models.GeneratePdfResult{}, err
	}
	html, err := r.renderer.RenderTemplate(tpl, req.Data, req.ShouldSanitize(), false)
	if err != nil {
		return models.GeneratePdfResult{}, err
	}
	return r.rasterize(ctx, tpl, html, req.Data, req.Options)
}

// GenerateRaw rasterizes caller-supplied HTML with A4 defaults.
func (r *Rasterizer) GenerateRaw(ctx context.Context, req models.RawRequest) (models.GeneratePdfResult, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return models.GeneratePdfResult{}, apperr.Validation("html is required")
	}
	tpl := models.Template{ID: req.TemplateID, Type: models.PaperA4}
	html := r.renderer.RenderRaw(req.HTML, req.ShouldSanitize())
	return r.rasterize(ctx, tpl, html, req.Data, req.Options)
}

func (r *Rasterizer) rasterize(ctx context.Context, tpl models.Template, html string, data models.Data, opts *models.GenerateOptions) (models.GeneratePdfResult, error) {
	setup := ResolvePageSetup(tpl, opts)
	headerSrc, footerSrc := HeaderFooterSources(tpl, opts)
	header, err := r.renderer.Fragment("header", headerSrc, render.DefaultHeaderHTML, data)
	if err != nil {
		return models.GeneratePdfResult{}, err
	}
	footer, err := r.renderer.Fragment("footer", footerSrc, render.DefaultFooterHTML, data)
	if err != nil {
		return models.GeneratePdfResult{}, err
	}

	now := r.now()
	dateKey := now.Format(dateKeyLayout)
	dir := filepath.Join(r.PDFRoot(), dateKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.GeneratePdfResult{}, apperr.Infrastructure(err, "create output directory")
	}
	var requested string
	if opts != nil {
		requested = opts.FileName
	}
	file, fileName, err := reserveFile(dir, buildFileName(requested, tpl.ID, now), now)
	if err != nil {
		return models.GeneratePdfResult{}, apperr.Infrastructure(err, "reserve output file")
	}
	target := file.Name()
	written := false
	defer func() {
		if !written {
			file.Close()
			os.Remove(target)
		}
	}()

	if r.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RenderTimeout)
		defer cancel()
	}

	started := time.Now()
	out, err := r.printer.Print(ctx, PrintJob{
		HTML:           html,
		Setup:          setup,
		HeaderTemplate: header,
		FooterTemplate: footer,
		Screenshot:     r.cfg.ThumbnailWidth > 0,
	})
	if err != nil {
		telemetry.RenderDuration.WithLabelValues("error").Observe(time.Since(started).Seconds())
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Rasterization(err, "rasterize")
		}
		return models.GeneratePdfResult{}, err
	}
	telemetry.RenderDuration.WithLabelValues("ok").Observe(time.Since(started).Seconds())

	if _, err := file.Write(out.PDF); err != nil {
		return models.GeneratePdfResult{}, apperr.Infrastructure(err, "write pdf")
	}
	info, err := file.Stat()
	if err != nil {
		return models.GeneratePdfResult{}, apperr.Infrastructure(err, "stat pdf")
	}
	if err := file.Close(); err != nil {
		return models.GeneratePdfResult{}, apperr.Infrastructure(err, "close pdf")
	}
	written = true

	entry := models.PdfIndexEntry{
		TemplateID: tpl.ID,
		URL:        fileURL(r.cfg.URLPrefix, dateKey, fileName),
		FileName:   fileName,
		Size:       info.Size(),
		DateKey:    dateKey,
		CreatedAt:  now,
	}
	log := r.logger.With(zap.String("template_id", tpl.ID), zap.String("file", entry.URL))

	if pages, err := PageCount(target); err == nil {
		entry.Pages = pages
	} else {
		log.Warn("page count failed", zap.Error(err))
	}
	if len(out.Screenshot) > 0 {
		entry.ThumbnailURL = r.writeThumbnail(dir, dateKey, fileName, out.Screenshot, log)
	}
	if r.mirror != nil {
		if loc, err := r.mirror.Upload(ctx, dateKey+"/"+fileName, out.PDF, "application/pdf"); err != nil {
			log.Warn("mirror upload failed", zap.Error(err))
		} else {
			log.Debug("pdf mirrored", zap.String("location", loc))
		}
	}
	if err := r.index.Append(entry); err != nil {
		log.Warn("index append failed", zap.Error(err))
	}

	log.Info("pdf generated",
		zap.Int64("bytes", entry.Size),
		zap.Int("pages", entry.Pages),
		zap.Duration("duration", time.Since(started)))

	return models.GeneratePdfResult{URL: entry.URL, FileName: fileName, Size: entry.Size}, nil
}

func (r *Rasterizer) writeThumbnail(dir, dateKey, fileName string, screenshot []byte, log *zap.Logger) string {
	thumb, err := Thumbnail(screenshot, r.cfg.ThumbnailWidth)
	if err != nil {
		log.Warn("thumbnail failed", zap.Error(err))
		return ""
	}
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName)) + ".png"
	if err := os.WriteFile(filepath.Join(dir, name), thumb, 0o644); err != nil {
		log.Warn("thumbnail write failed", zap.Error(err))
		return ""
	}
	return fileURL(r.cfg.URLPrefix, dateKey, name)
}

// ListPdfs returns every generated PDF, newest first, optionally for one template.
func (r *Rasterizer) ListPdfs(_ context.Context, templateID string) ([]models.PdfIndexEntry, error) {
	indexed, err := r.index.Load()
	if err != nil {
		r.logger.Warn("index unreadable, using disk scan only", zap.Error(err))
		indexed = nil
	}
	scanned, err := scanDisk(r.PDFRoot(), r.cfg.URLPrefix)
	if err != nil {
		return nil, apperr.Infrastructure(err, "scan pdf directory")
	}
	return reconcile(indexed, scanned, templateID), nil
}

// buildFileName returns a safe "<name>.pdf". Without a requested name it uses
// "<templateId>_<unix millis>".
func buildFileName(requested, templateID string, now time.Time) string {
	name := safeName(strings.TrimSuffix(strings.TrimSuffix(filepath.Base(requested), ".pdf"), ".PDF"))
	if requested == "" || name == "" {
		prefix := safeName(templateID)
		if prefix == "" {
			prefix = rawPrefix
		}
		name = fmt.Sprintf("%s_%d", prefix, now.UnixMilli())
	}
	return name + ".pdf"
}

// reserveFile exclusively creates fileName in dir, suffixing the timestamp and
// then a counter while the name is taken. Concurrent callers never share a file.
func reserveFile(dir, fileName string, now time.Time) (*os.File, string, error) {
	base := strings.TrimSuffix(fileName, ".pdf")
	for n := 0; ; n++ {
		candidate := fileName
		switch {
		case n == 1:
			candidate = fmt.Sprintf("%s_%d.pdf", base, now.UnixMilli())
		case n > 1:
			candidate = fmt.Sprintf("%s_%d_%d.pdf", base, now.UnixMilli(), n-1)
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "." || s == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			return r
		case unicode.IsSpace(r):
			return '_'
		default:
			return -1
		}
	}, s)
}
