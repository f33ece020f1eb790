package worker

import (
	"context"
	"encoding/json"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/models"
)

// Generator is the rendering pipeline jobs are dispatched to.
type Generator interface {
	GeneratePdf(ctx context.Context, req models.GenerateRequest) (models.GeneratePdfResult, error)
	GenerateRaw(ctx context.Context, req models.RawRequest) (models.GeneratePdfResult, error)
}

// RegisterGenerator installs the raw and template handlers backed by g.
func (p *Processor) RegisterGenerator(g Generator) {
	p.RegisterHandler(models.ModeRaw, RawHandler(g))
	p.RegisterHandler(models.ModeTemplate, TemplateHandler(g))
}

// RawHandler decodes a RawRequest payload.
func RawHandler(g Generator) Handler {
	return func(ctx context.Context, payload []byte) (models.GeneratePdfResult, error) {
		var req models.RawRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return models.GeneratePdfResult{}, apperr.Validation("decode raw job payload: %v", err)
		}
		return g.GenerateRaw(ctx, req)
	}
}

// TemplateHandler decodes a GenerateRequest payload.
func TemplateHandler(g Generator) Handler {
	return func(ctx context.Context, payload []byte) (models.GeneratePdfResult, error) {
		var req models.GenerateRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return models.GeneratePdfResult{}, apperr.Validation("decode template job payload: %v", err)
		}
		return g.GeneratePdf(ctx, req)
	}
}
