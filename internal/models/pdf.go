package models

import "time"

// Paper types understood by the rasterizer.
const (
	PaperA4     = "A4"
	PaperA5     = "A5"
	PaperCustom = "CUSTOM"
)

// Template is a stored document definition. It is read-only here.
type Template struct {
	ID                  string   `json:"id"`
	Type                string   `json:"type"`
	Content             string   `json:"content"`
	WidthMm             *float64 `json:"widthMm,omitempty"`
	HeightMm            *float64 `json:"heightMm,omitempty"`
	DisplayHeaderFooter *bool    `json:"displayHeaderFooter,omitempty"`
	HeaderHTML          string   `json:"headerHtml,omitempty"`
	FooterHTML          string   `json:"footerHtml,omitempty"`
	HeaderHeightMm      *float64 `json:"headerHeightMm,omitempty"`
	FooterHeightMm      *float64 `json:"footerHeightMm,omitempty"`
}

// Data is the template binding. Values decoded from JSON are limited to
// string, float64, bool, nil, map[string]any and []any. Keys that do not
// resolve render as empty text.
type Data map[string]any

// RenderRequest asks for HTML only.
type RenderRequest struct {
	TemplateID          string `json:"templateId"`
	Data                Data   `json:"data,omitempty"`
	Sanitize            *bool  `json:"sanitize,omitempty"`
	PreviewHeaderFooter bool   `json:"previewHeaderFooter,omitempty"`
}

// ShouldSanitize defaults to true.
func (r RenderRequest) ShouldSanitize() bool {
	return r.Sanitize == nil || *r.Sanitize
}

// MarginMm holds per-side overrides; nil sides keep the default.
type MarginMm struct {
	Top    *float64 `json:"top,omitempty"`
	Right  *float64 `json:"right,omitempty"`
	Bottom *float64 `json:"bottom,omitempty"`
	Left   *float64 `json:"left,omitempty"`
}

// GenerateOptions override template layout for one generation.
type GenerateOptions struct {
	Type                string    `json:"type,omitempty"`
	WidthMm             *float64  `json:"widthMm,omitempty"`
	HeightMm            *float64  `json:"heightMm,omitempty"`
	MarginMm            *MarginMm `json:"marginMm,omitempty"`
	FileName            string    `json:"fileName,omitempty"`
	HeaderHTML          string    `json:"headerHtml,omitempty"`
	FooterHTML          string    `json:"footerHtml,omitempty"`
	DisplayHeaderFooter *bool     `json:"displayHeaderFooter,omitempty"`
	HeaderHeightMm      *float64  `json:"headerHeightMm,omitempty"`
	FooterHeightMm      *float64  `json:"footerHeightMm,omitempty"`
}

// GenerateRequest renders a stored template to PDF.
type GenerateRequest struct {
	RenderRequest
	Options *GenerateOptions `json:"options,omitempty"`
}

// RawRequest renders caller-supplied HTML to PDF without a stored template.
type RawRequest struct {
	HTML       string           `json:"html"`
	Data       Data             `json:"data,omitempty"`
	Sanitize   *bool            `json:"sanitize,omitempty"`
	TemplateID string           `json:"templateId,omitempty"`
	Options    *GenerateOptions `json:"options,omitempty"`
}

// ShouldSanitize defaults to true.
func (r RawRequest) ShouldSanitize() bool {
	return r.Sanitize == nil || *r.Sanitize
}

// GeneratePdfResult is returned once per successful generation.
type GeneratePdfResult struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// PdfIndexEntry is one record of the generated-file catalog.
type PdfIndexEntry struct {
	TemplateID   string    `json:"templateId,omitempty"`
	URL          string    `json:"url"`
	FileName     string    `json:"fileName"`
	Size         int64     `json:"size"`
	DateKey      string    `json:"dateKey"`
	Pages        int       `json:"pages,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
