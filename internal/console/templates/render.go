// Package templates renders the console pages from embedded html/template files
// and exposes them as templ components.
package templates

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/a-h/templ"
)

//go:embed files/*.html
var files embed.FS

var (
	parseOnce sync.Once
	parsed    *template.Template
	parseErr  error
)

func set() (*template.Template, error) {
	parseOnce.Do(func() {
		parsed, parseErr = template.New("console").ParseFS(files, "files/*.html")
	})
	return parsed, parseErr
}

// Component returns a templ.Component that executes the named template with data.
func Component(name string, data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		tmpl, err := set()
		if err != nil {
			return fmt.Errorf("templates: parse: %w", err)
		}
		if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
			return fmt.Errorf("templates: render %s: %w", name, err)
		}
		return nil
	})
}
