package render

import (
	"github.com/microcosm-cc/bluemonday"
)

// NewPolicy returns the allow-list used for sanitized renders: UGC markup plus
// document structure tags, <style>, inline style/class/id, and data: or
// http(s): images. Scripts and event handler attributes are always dropped.
func NewPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("img", "style", "section", "article", "header", "footer", "main", "figure", "figcaption", "span", "div")
	p.AllowAttrs("style", "class", "id").Globally()
	p.AllowURLSchemes("data", "http", "https")
	p.AllowDataURIImages()
	p.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	// Required for <style> elements to survive; <script> stays off the allow-list.
	p.AllowUnsafe(true)
	return p
}
