package render

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
)

// HTMLRenderer renders pages from html/template files in a directory.
// Per-node pages (node_<id>) all share the node template.
type HTMLRenderer struct {
	dir string
}

// NewHTMLRenderer creates a renderer over the given template directory.
func NewHTMLRenderer(dir string) *HTMLRenderer {
	return &HTMLRenderer{dir: dir}
}

// Render parses and executes the template for the named page.
func (r *HTMLRenderer) Render(page string, view any) ([]byte, error) {
	name := page
	if strings.HasPrefix(page, "node_") {
		name = "node"
	}
	path := filepath.Join(r.dir, name+".html.tmpl")
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", path, err)
	}
	return buf.Bytes(), nil
}
