package render

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/models"
	"htmlpdf-service/internal/store"
)

func newTestRenderer(templates ...models.Template) *Renderer {
	return New(store.NewMemory(templates...), nil)
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func TestRenderHTML_Interpolation(t *testing.T) {
	r := newTestRenderer(models.Template{
		ID:      "greeting",
		Content: `<html><head><title>x</title></head><body><h1>Hello {{.name}}</h1><p>{{.missing}}</p></body></html>`,
	})

	html, err := r.RenderHTML(context.Background(), models.RenderRequest{
		TemplateID: "greeting",
		Data:       models.Data{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Hello Ada")
	assert.Contains(t, html, "<p></p>")
	assert.NotContains(t, html, "no value")
}

func TestRenderHTML_NullNestedFieldRendersEmpty(t *testing.T) {
	r := newTestRenderer(models.Template{
		ID: "profile",
		Content: `<p>{{.user.name}}</p><i>{{.user}}</i>{{if .user}}USERSET{{end}}<b>{{default "anon" .user}}</b>` +
			`{{range .items}}<li>{{.sku}}</li>{{end}}`,
	})

	html, err := r.RenderHTML(context.Background(), models.RenderRequest{
		TemplateID: "profile",
		Data:       models.Data{"user": nil, "items": []any{nil, map[string]any{"sku": "A1"}}},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "<p></p>")
	assert.Contains(t, html, "<i></i>")
	assert.NotContains(t, html, "USERSET")
	assert.Contains(t, html, "<b>anon</b>")
	assert.Contains(t, html, "<li></li><li>A1</li>")
}

func TestRenderHTML_EqHelper(t *testing.T) {
	r := newTestRenderer(models.Template{
		ID:      "status",
		Content: `{{if eq .status "paid"}}<b>PAID</b>{{else}}<i>OPEN</i>{{end}}{{if eq .count 3}}three{{end}}`,
	})

	html, err := r.RenderHTML(context.Background(), models.RenderRequest{
		TemplateID: "status",
		Data:       models.Data{"status": "paid", "count": float64(3)},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "PAID")
	assert.Contains(t, html, "three")

	html, err = r.RenderHTML(context.Background(), models.RenderRequest{TemplateID: "status"})
	require.NoError(t, err)
	assert.Contains(t, html, "OPEN")
}

func TestRenderHTML_NotFound(t *testing.T) {
	r := newTestRenderer()

	_, err := r.RenderHTML(context.Background(), models.RenderRequest{TemplateID: "nope"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = r.RenderHTML(context.Background(), models.RenderRequest{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRenderHTML_MalformedTemplate(t *testing.T) {
	r := newTestRenderer(models.Template{ID: "bad", Content: `<p>{{.name</p>`})

	_, err := r.RenderHTML(context.Background(), models.RenderRequest{TemplateID: "bad"})
	assert.True(t, apperr.Is(err, apperr.KindRender))
}

func TestRenderHTML_BaselineInjectedOnce(t *testing.T) {
	cases := map[string]string{
		"with head":    `<html><head></head><body>x</body></html>`,
		"without head": `<p>x</p>`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			r := newTestRenderer(models.Template{ID: "t", Content: content})
			for _, sanitize := range []bool{true, false} {
				html, err := r.RenderHTML(context.Background(), models.RenderRequest{TemplateID: "t", Sanitize: boolPtr(sanitize)})
				require.NoError(t, err)
				assert.Equal(t, 1, strings.Count(html, BaselineMarker))

				assert.Equal(t, html, InjectStyles(html))
			}
		})
	}
}

func TestInjectStyles_PlacedInsideHead(t *testing.T) {
	out := InjectStyles(`<html><head lang="en"><title>t</title></head><body><header>h</header></body></html>`)
	headAt := strings.Index(out, `<head lang="en">`)
	markerAt := strings.Index(out, BaselineMarker)
	assert.Greater(t, markerAt, headAt)
	assert.Less(t, markerAt, strings.Index(out, "<title>"))
}

func TestRenderHTML_SanitizeStripsScripts(t *testing.T) {
	content := `<html><head></head><body>` +
		`<section class="a" id="b" style="color: red"><img src="data:image/png;base64,iVBORw0KGgo=" onerror="alert(1)"></section>` +
		`<script>alert('x')</script><div onclick="steal()">click</div><a href="javascript:alert(1)">j</a>` +
		`</body></html>`
	r := newTestRenderer(models.Template{ID: "xss", Content: content})

	html, err := r.RenderHTML(context.Background(), models.RenderRequest{TemplateID: "xss"})
	require.NoError(t, err)
	lower := strings.ToLower(html)
	assert.NotContains(t, lower, "<script")
	assert.NotContains(t, lower, "onerror=")
	assert.NotContains(t, lower, "onclick=")
	assert.NotContains(t, lower, "javascript:")
	assert.Contains(t, html, `<section class="a" id="b" style="color: red">`)
	assert.Contains(t, html, `data:image/png;base64`)
	assert.Contains(t, html, "<style")
}

func TestRenderHTML_SanitizeDisabledPreservesInput(t *testing.T) {
	content := `<body><script>window.x = 1</script><div onclick="go()">c</div></body>`
	r := newTestRenderer(models.Template{ID: "trusted", Content: content})

	html, err := r.RenderHTML(context.Background(), models.RenderRequest{TemplateID: "trusted", Sanitize: boolPtr(false)})
	require.NoError(t, err)
	assert.Contains(t, html, `<script>window.x = 1</script>`)
	assert.Contains(t, html, `onclick="go()"`)
}

func TestRenderHTML_PreviewHeaderFooter(t *testing.T) {
	r := newTestRenderer(models.Template{
		ID:             "report",
		Content:        `<html><body class="doc"><main>body</main></body></html>`,
		HeaderHTML:     `<div>Report for {{.customer}}</div>`,
		HeaderHeightMm: floatPtr(30),
	})

	html, err := r.RenderHTML(context.Background(), models.RenderRequest{
		TemplateID:          "report",
		Data:                models.Data{"customer": "ACME"},
		PreviewHeaderFooter: true,
		Sanitize:            boolPtr(false),
	})
	require.NoError(t, err)

	assert.Contains(t, html, "Report for ACME")
	assert.Contains(t, html, "height: 30mm")
	assert.Contains(t, html, "padding-top: 34mm")
	assert.Contains(t, html, "padding-bottom: 24mm")
	assert.Contains(t, html, `class="pageNumber"`)

	bodyAt := strings.Index(html, `<body class="doc">`)
	headerAt := strings.Index(html, "htmlpdf-preview-header")
	footerAt := strings.Index(html, "htmlpdf-preview-footer")
	closeAt := strings.Index(html, "</body>")
	assert.True(t, bodyAt < headerAt && headerAt < strings.Index(html, "<main>"))
	assert.True(t, footerAt < closeAt && strings.Index(html, "</main>") < footerAt)
}

func TestRenderHTML_PreviewSkippedWhenDisabled(t *testing.T) {
	r := newTestRenderer(models.Template{
		ID:                  "plain",
		Content:             `<body>x</body>`,
		DisplayHeaderFooter: boolPtr(false),
	})

	html, err := r.RenderHTML(context.Background(), models.RenderRequest{TemplateID: "plain", PreviewHeaderFooter: true})
	require.NoError(t, err)
	assert.NotContains(t, html, "htmlpdf-preview-header")
}

func TestSpliceHeaderFooter_MissingBodyTags(t *testing.T) {
	out := SpliceHeaderFooter("<p>x</p>", "H", "F", 20, 20)
	assert.True(t, strings.HasPrefix(out, `<style id="htmlpdf-preview">`))
	assert.True(t, strings.HasSuffix(out, `F</div>`))
}

func TestRenderRaw(t *testing.T) {
	r := newTestRenderer()

	out := r.RenderRaw(`<h1>Hi</h1><script>x()</script>`, true)
	assert.Contains(t, out, "<h1>Hi</h1>")
	assert.NotContains(t, out, "<script")
	assert.Equal(t, 1, strings.Count(out, BaselineMarker))

	out = r.RenderRaw(`<h1>Hi</h1><script>x()</script>`, false)
	assert.Contains(t, out, "<script>x()</script>")
}
