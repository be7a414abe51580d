package view

import (
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"text/template"

	"github.com/willemschots/accounts/internal/email"
)

const ext = ".tmpl"

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// View is a parsed email template. The {name}.tmpl file defines one
// template per email element.
type View struct {
	elements map[email.TemplateElement]*template.Template
}

// Parse loads {name}.tmpl from the root of fsys.
func Parse(fsys fs.FS, name string) (*View, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("invalid email template name %q", name)
	}

	tmpl, err := template.New(name).Option("missingkey=error").ParseFS(fsys, name+ext)
	if err != nil {
		return nil, err
	}

	v := &View{elements: make(map[email.TemplateElement]*template.Template, 2)}
	for _, el := range []email.TemplateElement{email.ElementSubject, email.ElementBody} {
		t := tmpl.Lookup(string(el))
		if t == nil {
			return nil, fmt.Errorf("email template %s has no %s", name, el)
		}
		v.elements[el] = t
	}

	return v, nil
}

// Render writes a single element of the email to w.
func (v *View) Render(w io.Writer, element email.TemplateElement, data any) error {
	t, ok := v.elements[element]
	if !ok {
		return fmt.Errorf("unknown email element %q", element)
	}
	return t.Execute(w, data)
}
