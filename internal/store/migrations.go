package store

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
)

// The template schema is the single pdf_templates table. Every statement is
// written with IF NOT EXISTS, so the whole set is replayed on each start and
// no applied-version table is kept.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

type schemaStep struct {
	name string
	sql  string
}

// schemaSteps returns the non-empty embedded .sql files in file name order.
func schemaSteps() ([]schemaStep, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var steps []schemaStep
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if sql := strings.TrimSpace(string(content)); sql != "" {
			steps = append(steps, schemaStep{name: e.Name(), sql: sql})
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].name < steps[j].name })
	return steps, nil
}

// RunMigrations ensures the pdf_templates table exists.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	steps, err := schemaSteps()
	if err != nil {
		return err
	}
	for _, st := range steps {
		if _, err := s.pool.Exec(ctx, st.sql); err != nil {
			return fmt.Errorf("exec migration %s: %w", st.name, err)
		}
	}
	return nil
}
