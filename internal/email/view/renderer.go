package view

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/willemschots/accounts/internal/email"
)

// ErrNotFound is returned for templates a renderer doesn't know.
var ErrNotFound = errors.New("email template not found")

// FSRenderer parses the template on every render, so edits on disk show up
// without a restart.
type FSRenderer struct {
	fsys fs.FS
}

func NewFSRenderer(fsys fs.FS) *FSRenderer {
	return &FSRenderer{fsys: fsys}
}

func (r *FSRenderer) Render(w io.Writer, name string, element email.TemplateElement, data any) error {
	_, err := fs.Stat(r.fsys, name+ext)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	v, err := Parse(r.fsys, name)
	if err != nil {
		return err
	}
	return v.Render(w, element, data)
}

// MemRenderer parses every template once.
type MemRenderer struct {
	views map[string]*View
}

// NewMemRenderer parses every *.tmpl file in the root of fsys.
func NewMemRenderer(fsys fs.FS) (*MemRenderer, error) {
	files, err := fs.Glob(fsys, "*"+ext)
	if err != nil {
		return nil, err
	}

	views := make(map[string]*View, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(f, ext)
		v, err := Parse(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse email template %s: %w", name, err)
		}
		views[name] = v
	}

	return &MemRenderer{views: views}, nil
}

func (r *MemRenderer) Render(w io.Writer, name string, element email.TemplateElement, data any) error {
	v, ok := r.views[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v.Render(w, element, data)
}
