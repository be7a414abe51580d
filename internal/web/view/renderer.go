package view

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// ErrNotFound is returned when a renderer has no view with the requested name.
var ErrNotFound = errors.New("view not found")

// FSRenderer parses views from a file system on every render, so changes to
// the templates show up without a restart.
type FSRenderer struct {
	fs fs.FS
}

func NewFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{fs: fs}
}

func (r *FSRenderer) Render(w io.Writer, name string, data any) error {
	if err := validateName(name); err != nil {
		return err
	}

	file := name + ".html"
	if file == baseFilename {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	_, err := fs.Stat(r.fs, file)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	v, err := Parse(r.fs, name)
	if err != nil {
		return err
	}
	return v.Render(w, data)
}

// MemRenderer parses every page up front and keeps the results in memory.
type MemRenderer struct {
	views map[string]*View
}

// NewMemRenderer parses a view for every *.html file in the root of viewFS,
// except the base template.
func NewMemRenderer(viewFS fs.FS) (*MemRenderer, error) {
	files, err := fs.Glob(viewFS, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to glob for views: %w", err)
	}

	views := make(map[string]*View, len(files))
	for _, file := range files {
		if file == baseFilename {
			continue
		}

		name := strings.TrimSuffix(file, ".html")
		v, err := Parse(viewFS, name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse view %q: %w", name, err)
		}

		views[name] = v
	}

	return &MemRenderer{views: views}, nil
}

func (r *MemRenderer) Render(w io.Writer, name string, data any) error {
	v, ok := r.views[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v.Render(w, data)
}
