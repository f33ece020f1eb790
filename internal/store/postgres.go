package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/models"
)

// PostgresStore reads templates from the pdf_templates table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetTemplate fetches a template by id.
func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (models.Template, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, content, width_mm, height_mm, display_header_footer,
		       header_html, footer_html, header_height_mm, footer_height_mm
		FROM pdf_templates WHERE id = $1
	`, id)

	var t models.Template
	var width, height, headerH, footerH pgtype.Float8
	var display pgtype.Bool
	if err := row.Scan(&t.ID, &t.Type, &t.Content, &width, &height, &display,
		&t.HeaderHTML, &t.FooterHTML, &headerH, &footerH); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Template{}, apperr.NotFound("template %q not found", id)
		}
		return models.Template{}, apperr.Infrastructure(err, "scan template")
	}
	t.WidthMm = floatPtr(width)
	t.HeightMm = floatPtr(height)
	t.HeaderHeightMm = floatPtr(headerH)
	t.FooterHeightMm = floatPtr(footerH)
	if display.Valid {
		t.DisplayHeaderFooter = &display.Bool
	}
	return t, nil
}

// Put inserts or replaces a template.
func (s *PostgresStore) Put(ctx context.Context, t models.Template) error {
	if t.ID == "" {
		return apperr.Validation("template id is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pdf_templates (id, type, content, width_mm, height_mm, display_header_footer,
		                           header_html, footer_html, header_height_mm, footer_height_mm)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			content = EXCLUDED.content,
			width_mm = EXCLUDED.width_mm,
			height_mm = EXCLUDED.height_mm,
			display_header_footer = EXCLUDED.display_header_footer,
			header_html = EXCLUDED.header_html,
			footer_html = EXCLUDED.footer_html,
			header_height_mm = EXCLUDED.header_height_mm,
			footer_height_mm = EXCLUDED.footer_height_mm,
			updated_at = NOW()
	`, t.ID, typeOrDefault(t.Type), t.Content, t.WidthMm, t.HeightMm, t.DisplayHeaderFooter,
		t.HeaderHTML, t.FooterHTML, t.HeaderHeightMm, t.FooterHeightMm)
	if err != nil {
		return apperr.Infrastructure(err, "upsert template")
	}
	return nil
}

func floatPtr(f pgtype.Float8) *float64 {
	if f.Valid {
		return &f.Float64
	}
	return nil
}

func typeOrDefault(t string) string {
	if t == "" {
		return models.PaperA4
	}
	return t
}
