package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/models"
)

// MemoryStore keeps templates in a map. Used for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]models.Template
}

func NewMemory(templates ...models.Template) *MemoryStore {
	s := &MemoryStore{templates: make(map[string]models.Template, len(templates))}
	for _, t := range templates {
		s.templates[t.ID] = t
	}
	return s
}

func (s *MemoryStore) GetTemplate(_ context.Context, id string) (models.Template, error) {
	s.mu.RLock()
	t, ok := s.templates[id]
	s.mu.RUnlock()
	if !ok {
		return models.Template{}, apperr.NotFound("template %q not found", id)
	}
	return t, nil
}

func (s *MemoryStore) Put(_ context.Context, t models.Template) error {
	if t.ID == "" {
		return apperr.Validation("template id is required")
	}
	t.Type = typeOrDefault(t.Type)
	s.mu.Lock()
	s.templates[t.ID] = t
	s.mu.Unlock()
	return nil
}

// LoadFile seeds the store from a JSON array of templates.
func (s *MemoryStore) LoadFile(ctx context.Context, path string) (int, error) {
	return seedFile(ctx, s.Put, path)
}

func seedFile(ctx context.Context, put func(context.Context, models.Template) error, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var templates []models.Template
	if err := json.Unmarshal(raw, &templates); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}
	for _, t := range templates {
		if err := put(ctx, t); err != nil {
			return 0, fmt.Errorf("seed template %q: %w", t.ID, err)
		}
	}
	return len(templates), nil
}
