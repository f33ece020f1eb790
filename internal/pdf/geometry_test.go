package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"htmlpdf-service/internal/models"
)

func fp(v float64) *float64 { return &v }

func bp(v bool) *bool { return &v }

func TestResolvePageSetup_Defaults(t *testing.T) {
	s := ResolvePageSetup(models.Template{}, nil)

	assert.Equal(t, models.PaperA4, s.Format)
	assert.Equal(t, 210.0, s.WidthMm)
	assert.Equal(t, 297.0, s.HeightMm)
	assert.True(t, s.DisplayHeaderFooter)
	assert.Equal(t, MinBandMm, s.HeaderHeightMm)
	// Header band of 20mm plus 6mm safety beats the 15mm default.
	assert.Equal(t, 26.0, s.Margins.Top)
	assert.Equal(t, 26.0, s.Margins.Bottom)
	assert.Equal(t, 11.0, s.Margins.Left)
	assert.Equal(t, 11.0, s.Margins.Right)
}

func TestResolvePageSetup_NoHeaderFooterKeepsMargins(t *testing.T) {
	s := ResolvePageSetup(models.Template{DisplayHeaderFooter: bp(false)}, nil)

	assert.False(t, s.DisplayHeaderFooter)
	assert.Equal(t, Margins{Top: 15, Right: 11, Bottom: 15, Left: 11}, s.Margins)
}

func TestResolvePageSetup_Custom(t *testing.T) {
	tpl := models.Template{Type: models.PaperCustom, WidthMm: fp(100), HeightMm: fp(150)}

	s := ResolvePageSetup(tpl, nil)
	assert.Equal(t, models.PaperCustom, s.Format)
	assert.Equal(t, 100.0, s.WidthMm)
	assert.Equal(t, 150.0, s.HeightMm)

	s = ResolvePageSetup(tpl, &models.GenerateOptions{WidthMm: fp(80)})
	assert.Equal(t, 80.0, s.WidthMm)
	assert.Equal(t, 150.0, s.HeightMm)
}

func TestResolvePageSetup_CustomMissingDimensionFallsBackToA4(t *testing.T) {
	cases := []models.Template{
		{Type: models.PaperCustom, WidthMm: fp(100)},
		{Type: models.PaperCustom, HeightMm: fp(100)},
		{Type: models.PaperCustom},
		{Type: models.PaperCustom, WidthMm: fp(0), HeightMm: fp(100)},
	}
	for _, tpl := range cases {
		s := ResolvePageSetup(tpl, nil)
		assert.Equal(t, models.PaperA4, s.Format)
		assert.Equal(t, 210.0, s.WidthMm)
		assert.Equal(t, 297.0, s.HeightMm)
	}
}

func TestResolvePageSetup_OptionsOverrideTemplate(t *testing.T) {
	tpl := models.Template{Type: models.PaperA4, HeaderHeightMm: fp(40)}
	s := ResolvePageSetup(tpl, &models.GenerateOptions{Type: "a5", FooterHeightMm: fp(5)})

	assert.Equal(t, models.PaperA5, s.Format)
	assert.Equal(t, 148.0, s.WidthMm)
	assert.Equal(t, 40.0, s.HeaderHeightMm)
	// Footer height is clamped up to the minimum band.
	assert.Equal(t, MinBandMm, s.FooterHeightMm)
	assert.Equal(t, 46.0, s.Margins.Top)
	assert.Equal(t, 26.0, s.Margins.Bottom)
}

func TestResolvePageSetup_MarginOverrides(t *testing.T) {
	opts := &models.GenerateOptions{MarginMm: &models.MarginMm{Top: fp(50), Left: fp(5)}}

	s := ResolvePageSetup(models.Template{}, opts)
	assert.Equal(t, 50.0, s.Margins.Top)
	assert.Equal(t, 26.0, s.Margins.Bottom)
	assert.Equal(t, 5.0, s.Margins.Left)
	assert.Equal(t, 11.0, s.Margins.Right)
}

func TestResolvePageSetup_UnknownTypeIsA4(t *testing.T) {
	s := ResolvePageSetup(models.Template{Type: "LETTER"}, nil)
	assert.Equal(t, models.PaperA4, s.Format)
}

func TestHeaderFooterSources(t *testing.T) {
	tpl := models.Template{HeaderHTML: "tpl-h", FooterHTML: "tpl-f"}

	h, ft := HeaderFooterSources(tpl, nil)
	assert.Equal(t, "tpl-h", h)
	assert.Equal(t, "tpl-f", ft)

	h, ft = HeaderFooterSources(tpl, &models.GenerateOptions{HeaderHTML: "opt-h"})
	assert.Equal(t, "opt-h", h)
	assert.Equal(t, "tpl-f", ft)
}

func TestPrintParams_Inches(t *testing.T) {
	setup := ResolvePageSetup(models.Template{}, nil)
	p := printParams(PrintJob{Setup: setup, HeaderTemplate: "<span></span>", FooterTemplate: "<span></span>"})

	assert.InDelta(t, 8.27, p.PaperWidth, 0.01)
	assert.InDelta(t, 11.69, p.PaperHeight, 0.01)
	assert.InDelta(t, mmToInches(26), p.MarginTop, 0.0001)
	assert.True(t, p.DisplayHeaderFooter)
	assert.True(t, p.PrintBackground)
}
