// Package store provides read access to stored templates.
package store

import (
	"context"

	"htmlpdf-service/internal/models"
)

// TemplateStore looks templates up by id. A miss is an apperr not_found.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (models.Template, error)
}

var (
	_ TemplateStore = (*MemoryStore)(nil)
	_ TemplateStore = (*PostgresStore)(nil)
)
