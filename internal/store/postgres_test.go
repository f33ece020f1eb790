package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/models"
)

// Runs only when TEST_POSTGRES_DSN points at a disposable database.
func TestPostgresStore_RoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.RunMigrations(ctx))

	header := 25.0
	display := false
	require.NoError(t, s.Put(ctx, models.Template{
		ID:                  "pg-test",
		Content:             "<p>{{.x}}</p>",
		HeaderHeightMm:      &header,
		DisplayHeaderFooter: &display,
	}))

	tpl, err := s.GetTemplate(ctx, "pg-test")
	require.NoError(t, err)
	assert.Equal(t, models.PaperA4, tpl.Type)
	require.NotNil(t, tpl.HeaderHeightMm)
	assert.Equal(t, 25.0, *tpl.HeaderHeightMm)
	assert.Nil(t, tpl.WidthMm)
	require.NotNil(t, tpl.DisplayHeaderFooter)
	assert.False(t, *tpl.DisplayHeaderFooter)

	_, err = s.GetTemplate(ctx, "pg-missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
