package printing

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/odyssey-erp/odyssey-pos/web"
)

// HTMLRenderer executes the embedded invoice template.
type HTMLRenderer struct {
	tpl *template.Template
}

// NewHTMLRenderer parses the invoice template.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	funcMap := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
	}
	tpl, err := template.New("invoice.html").Funcs(funcMap).ParseFS(web.Templates, "templates/invoices/invoice.html")
	if err != nil {
		return nil, fmt.Errorf("printing: parse template: %w", err)
	}
	return &HTMLRenderer{tpl: tpl}, nil
}

// Render returns the HTML of doc.
func (r *HTMLRenderer) Render(doc Document) (string, error) {
	if r == nil || r.tpl == nil {
		return "", fmt.Errorf("printing: renderer not initialised")
	}
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
