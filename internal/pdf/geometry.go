package pdf

import (
	"strings"

	"htmlpdf-service/internal/models"
	"htmlpdf-service/internal/render"
)

// Default margins in millimeters.
const (
	DefaultMarginTopMm    = 15.0
	DefaultMarginBottomMm = 15.0
	DefaultMarginLeftMm   = 11.0
	DefaultMarginRightMm  = 11.0
)

const (
	// MinBandMm is the smallest header or footer band the browser is given.
	MinBandMm = 20.0
	// bandSafetyMm separates the header/footer band from body content.
	bandSafetyMm = 6.0
)

var paperSizes = map[string][2]float64{
	models.PaperA4: {210, 297},
	models.PaperA5: {148, 210},
}

// Margins in millimeters.
type Margins struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// PageSetup is the resolved geometry for one rasterization.
type PageSetup struct {
	Format              string
	WidthMm             float64
	HeightMm            float64
	Margins             Margins
	DisplayHeaderFooter bool
	HeaderHeightMm      float64
	FooterHeightMm      float64
}

// ResolvePageSetup merges options over template settings over defaults.
// CUSTOM without both dimensions falls back to A4.
func ResolvePageSetup(tpl models.Template, opts *models.GenerateOptions) PageSetup {
	if opts == nil {
		opts = &models.GenerateOptions{}
	}

	format := strings.ToUpper(strings.TrimSpace(firstString(opts.Type, tpl.Type)))
	setup := PageSetup{Format: models.PaperA4}
	switch format {
	case models.PaperA4, models.PaperA5:
		setup.Format = format
	case models.PaperCustom:
		w := firstFloat(opts.WidthMm, tpl.WidthMm)
		h := firstFloat(opts.HeightMm, tpl.HeightMm)
		if w != nil && h != nil && *w > 0 && *h > 0 {
			setup.Format = models.PaperCustom
			setup.WidthMm, setup.HeightMm = *w, *h
		}
	}
	if setup.Format != models.PaperCustom {
		size := paperSizes[setup.Format]
		setup.WidthMm, setup.HeightMm = size[0], size[1]
	}

	setup.DisplayHeaderFooter = derefBool(firstBool(opts.DisplayHeaderFooter, tpl.DisplayHeaderFooter), true)
	setup.HeaderHeightMm = max(derefFloat(firstFloat(opts.HeaderHeightMm, tpl.HeaderHeightMm), render.DefaultBandMm), MinBandMm)
	setup.FooterHeightMm = max(derefFloat(firstFloat(opts.FooterHeightMm, tpl.FooterHeightMm), render.DefaultBandMm), MinBandMm)

	setup.Margins = Margins{
		Top:    DefaultMarginTopMm,
		Right:  DefaultMarginRightMm,
		Bottom: DefaultMarginBottomMm,
		Left:   DefaultMarginLeftMm,
	}
	if m := opts.MarginMm; m != nil {
		setup.Margins.Top = derefFloat(m.Top, setup.Margins.Top)
		setup.Margins.Right = derefFloat(m.Right, setup.Margins.Right)
		setup.Margins.Bottom = derefFloat(m.Bottom, setup.Margins.Bottom)
		setup.Margins.Left = derefFloat(m.Left, setup.Margins.Left)
	}
	if setup.DisplayHeaderFooter {
		setup.Margins.Top = max(setup.Margins.Top, setup.HeaderHeightMm+bandSafetyMm)
		setup.Margins.Bottom = max(setup.Margins.Bottom, setup.FooterHeightMm+bandSafetyMm)
	}
	return setup
}

// HeaderFooterSources picks the header and footer template sources.
func HeaderFooterSources(tpl models.Template, opts *models.GenerateOptions) (header, footer string) {
	header, footer = tpl.HeaderHTML, tpl.FooterHTML
	if opts != nil {
		header = firstString(opts.HeaderHTML, header)
		footer = firstString(opts.FooterHTML, footer)
	}
	return header, footer
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstBool(vals ...*bool) *bool {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func derefFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func derefBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func mmToInches(mm float64) float64 {
	return mm / 25.4
}
