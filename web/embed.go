package web

import "embed"

// Templates embeds the printable invoice templates.
//
//go:embed templates/invoices/*.html
var Templates embed.FS
