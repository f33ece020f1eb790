package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"htmlpdf-service/internal/apperr"
)

// Engine compiles html/template sources. Missing keys render as empty text.
type Engine struct {
	funcMap template.FuncMap
}

// NewEngine creates an engine with the comparison and string helpers templates rely on.
func NewEngine() *Engine {
	return &Engine{
		funcMap: template.FuncMap{
			// Loose comparisons so JSON numbers compare equal to their text form.
			"eq": func(a, b any) bool { return looseString(a) == looseString(b) },
			"ne": func(a, b any) bool { return looseString(a) != looseString(b) },

			"default": func(def, v any) any {
				if empty(v) {
					return def
				}
				return v
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"trim":  strings.TrimSpace,
			"join": func(sep string, items []any) string {
				parts := make([]string, 0, len(items))
				for _, it := range items {
					parts = append(parts, looseString(it))
				}
				return strings.Join(parts, sep)
			},
		},
	}
}

// Compile parses src and executes it against data.
func (e *Engine) Compile(name, src string, data map[string]any) (string, error) {
	tmpl, err := template.New(name).Funcs(e.funcMap).Parse(src)
	if err != nil {
		return "", apperr.Render(err, "parse template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nullSafe(data)); err != nil {
		return "", apperr.Render(err, "execute template %s", name)
	}
	return buf.String(), nil
}

// blank stands in for a JSON null. Field lookups on it yield nothing and it
// prints as empty text, so {{.user.name}} works when user is null.
type blank map[string]any

func (blank) String() string { return "" }

// nullSafe copies data, replacing every nil value with a blank.
func nullSafe(v any) any {
	switch t := v.(type) {
	case nil:
		return blank{}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = nullSafe(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = nullSafe(val)
		}
		return out
	}
	return v
}

func looseString(v any) string {
	if v == nil {
		return ""
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", v)
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case blank:
		return true
	}
	return false
}
