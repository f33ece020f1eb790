// Package render turns stored templates and request data into print-ready HTML.
package render

import (
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/logger"
	"htmlpdf-service/internal/models"
	"htmlpdf-service/internal/store"
)

// Built-in header and footer fragments. The title, date, pageNumber and
// totalPages classes are filled by the browser when rasterizing.
const (
	DefaultHeaderHTML = `<div style="width: 100%; padding: 0 11mm; font-size: 9px; color: #666; display: flex; justify-content: space-between;">` +
		`<span class="title">{{.title}}</span><span class="date">{{.date}}</span></div>`
	DefaultFooterHTML = `<div style="width: 100%; padding: 0 11mm; font-size: 9px; color: #666; text-align: center;">` +
		`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`
)

// DefaultBandMm is the header/footer height used when a template sets none.
const DefaultBandMm = 20.0

// Renderer compiles templates into HTML documents.
type Renderer struct {
	store  store.TemplateStore
	engine *Engine
	policy *bluemonday.Policy
	logger *zap.Logger
}

func New(st store.TemplateStore, log *zap.Logger) *Renderer {
	return &Renderer{
		store:  st,
		engine: NewEngine(),
		policy: NewPolicy(),
		logger: logger.OrNop(log).Named("render"),
	}
}

// Template fetches a template by id.
func (r *Renderer) Template(ctx context.Context, id string) (models.Template, error) {
	if strings.TrimSpace(id) == "" {
		return models.Template{}, apperr.Validation("templateId is required")
	}
	return r.store.GetTemplate(ctx, id)
}

// RenderHTML fetches the template and renders it.
func (r *Renderer) RenderHTML(ctx context.Context, req models.RenderRequest) (string, error) {
	tpl, err := r.Template(ctx, req.TemplateID)
	if err != nil {
		return "", err
	}
	return r.RenderTemplate(tpl, req.Data, req.ShouldSanitize(), req.PreviewHeaderFooter)
}

// RenderTemplate compiles tpl against data, injects styles, optionally
// overlays the header and footer for preview, and optionally sanitizes.
func (r *Renderer) RenderTemplate(tpl models.Template, data models.Data, sanitize, preview bool) (string, error) {
	html, err := r.engine.Compile(tpl.ID, tpl.Content, data)
	if err != nil {
		return "", err
	}
	html = InjectStyles(html)

	if preview && boolOr(tpl.DisplayHeaderFooter, true) {
		header, err := r.Fragment(tpl.ID+"-header", tpl.HeaderHTML, DefaultHeaderHTML, data)
		if err != nil {
			return "", err
		}
		footer, err := r.Fragment(tpl.ID+"-footer", tpl.FooterHTML, DefaultFooterHTML, data)
		if err != nil {
			return "", err
		}
		html = SpliceHeaderFooter(html, header, footer,
			floatOr(tpl.HeaderHeightMm, DefaultBandMm), floatOr(tpl.FooterHeightMm, DefaultBandMm))
	}

	if sanitize {
		html = r.policy.Sanitize(html)
	}
	r.logger.Debug("template rendered", zap.String("template_id", tpl.ID), zap.Int("bytes", len(html)))
	return html, nil
}

// RenderRaw prepares caller-supplied HTML. It is not compiled as a template.
func (r *Renderer) RenderRaw(raw string, sanitize bool) string {
	html := InjectStyles(raw)
	if sanitize {
		html = r.policy.Sanitize(html)
	}
	return html
}

// Fragment compiles a header or footer source, falling back to def when src is blank.
func (r *Renderer) Fragment(name, src, def string, data models.Data) (string, error) {
	if strings.TrimSpace(src) == "" {
		src = def
	}
	return r.engine.Compile(name, src, data)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
