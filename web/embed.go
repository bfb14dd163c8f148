package web

import "embed"

// Templates embeds HTML pages and plain text email bodies.
//
//go:embed templates
var Templates embed.FS

// Static embeds the stylesheet served under /static/.
//
//go:embed static
var Static embed.FS
