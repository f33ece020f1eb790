package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htmlpdf-service/internal/config"
)

func TestNewPipeline_MemoryStore(t *testing.T) {
	p, err := NewPipeline(context.Background(), config.Config{
		TemplateStore: "memory",
		StaticRoot:    t.TempDir(),
	}, nil)
	require.NoError(t, err)

	assert.NotNil(t, p.Renderer)
	assert.NotNil(t, p.Rasterizer)
	assert.False(t, p.Browser.IsConnected(), "browser launches lazily")
	p.Close()
}

func TestNewPipeline_UnknownStore(t *testing.T) {
	_, err := NewPipeline(context.Background(), config.Config{TemplateStore: "sqlite"}, nil)
	assert.Error(t, err)
}
