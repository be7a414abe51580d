package view

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	baseFilename    = "base.html"
	partialsPattern = "partials/*.html"
)

// validName guards against view names that would escape the template
// directory.
var validName = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// providerNames holds display names that can't be derived from the
// provider name.
var providerNames = map[string]string{
	"github": "GitHub",
}

var funcs = template.FuncMap{
	"join":         strings.Join,
	"providerName": providerName,
	"csrfField":    csrfField,
}

// View is a page made of base.html, the optional {name}.html that fills
// in the blocks of base, and every template in partials/.
type View struct {
	tmpl *template.Template
}

// Parse loads the view with the given name from viewFS. An empty name
// (or "base") results in a view of just the base template and partials.
func Parse(viewFS fs.FS, name string) (*View, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("invalid view name %q", name)
	}

	files := []string{baseFilename}
	if name != "" && name+".html" != baseFilename {
		files = append(files, name+".html")
	}

	partials, err := fs.Glob(viewFS, partialsPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob for partials: %w", err)
	}
	files = append(files, partials...)

	tmpl, err := template.New(baseFilename).Funcs(funcs).ParseFS(viewFS, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse view %q: %w", name, err)
	}

	return &View{tmpl: tmpl}, nil
}

// Render executes the base template with data.
func (v *View) Render(w io.Writer, data any) error {
	return v.tmpl.Execute(w, data)
}

func providerName(name string) string {
	if n, ok := providerNames[name]; ok {
		return n
	}

	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// csrfField renders the hidden input every form posts its CSRF token in.
func csrfField(token string) template.HTML {
	return template.HTML(`<input type="hidden" name="csrf_token" value="` + template.HTMLEscapeString(token) + `">`)
}
