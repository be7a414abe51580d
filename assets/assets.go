// Package assets embeds the page templates, email templates and static
// files into the binary.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed templates emails/*.tmpl dist
var files embed.FS

var (
	// TemplateFS holds base.html, one file per page and partials/.
	TemplateFS = mustSub("templates")
	// EmailFS holds one *.tmpl file per email.
	EmailFS = mustSub("emails")
	// DistFS is served as-is under /static/.
	DistFS = mustSub("dist")
)

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic("failed to subtree " + dir + " FS: " + err.Error())
	}
	return sub
}
