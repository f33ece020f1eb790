package render

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

//go:embed assets/baseline.css
var baselineCSS string

// BaselineMarker identifies the injected style block; its presence makes injection a no-op.
const BaselineMarker = `id="htmlpdf-baseline"`

// Body margins are zeroed for print so rasterizer margins are the only page margins.
const printOverrideCSS = `@media print {
  html, body { margin: 0 !important; padding: 0 !important; }
  .htmlpdf-no-print { display: none !important; }
}`

const uiOverrideCSS = `@media screen {
  body { background: #f5f5f5; }
  .htmlpdf-page { background: #fff; margin: 0 auto; box-shadow: 0 0 4px rgba(0, 0, 0, 0.15); }
}`

var styleBlock = sync.OnceValue(func() string {
	var b strings.Builder
	b.WriteString(`<style ` + BaselineMarker + `>`)
	b.WriteString(baselineCSS)
	b.WriteString(`</style>`)
	b.WriteString(`<style id="htmlpdf-print">` + printOverrideCSS + `</style>`)
	b.WriteString(`<style id="htmlpdf-ui">` + uiOverrideCSS + `</style>`)
	return b.String()
})

var (
	headOpenRe  = regexp.MustCompile(`(?i)<head(\s[^>]*)?>`)
	bodyOpenRe  = regexp.MustCompile(`(?i)<body(\s[^>]*)?>`)
	bodyCloseRe = regexp.MustCompile(`(?i)</body\s*>`)
)

// InjectStyles places the baseline style block just inside <head>, or prepends it.
func InjectStyles(html string) string {
	if strings.Contains(html, BaselineMarker) {
		return html
	}
	block := styleBlock()
	if loc := headOpenRe.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + block + html[loc[1]:]
	}
	return block + html
}

// previewBufferMm keeps preview body content clear of the fixed header and footer.
const previewBufferMm = 4.0

// SpliceHeaderFooter overlays fixed header and footer containers for preview.
func SpliceHeaderFooter(html, header, footer string, headerMm, footerMm float64) string {
	top := fmt.Sprintf(`<style id="htmlpdf-preview">body { padding-top: %smm !important; padding-bottom: %smm !important; }</style>`+
		`<div class="htmlpdf-preview-header" style="position: fixed; top: 0; left: 0; right: 0; height: %smm; overflow: hidden; z-index: 10; background: #fff;">%s</div>`,
		mm(headerMm+previewBufferMm), mm(footerMm+previewBufferMm), mm(headerMm), header)
	bottom := fmt.Sprintf(`<div class="htmlpdf-preview-footer" style="position: fixed; bottom: 0; left: 0; right: 0; height: %smm; overflow: hidden; z-index: 10; background: #fff;">%s</div>`,
		mm(footerMm), footer)

	open := bodyOpenRe.FindStringIndex(html)
	closes := bodyCloseRe.FindAllStringIndex(html, -1)
	if open == nil || len(closes) == 0 || closes[len(closes)-1][0] < open[1] {
		return top + html + bottom
	}
	closeAt := closes[len(closes)-1][0]
	return html[:open[1]] + top + html[open[1]:closeAt] + bottom + html[closeAt:]
}

func mm(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
