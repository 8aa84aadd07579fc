// Package web holds the embedded HTML templates of the admin pages.
package web

import (
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

const timeLayout = "2006-01-02 15:04"

var funcs = template.FuncMap{
	"formatTime": formatTime,
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
}

func formatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(timeLayout)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(timeLayout)
	}
	return ""
}

// Templates parses every page template. It panics on a malformed template.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
