// Package webassets embeds the page templates and the stylesheet.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed templates static
var embedded embed.FS

func sub(dir string) fs.FS {
	s, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return s
}

// Templates holds layout.html plus one file per page.
func Templates() fs.FS { return sub("templates") }

// Static is served under /static/.
func Static() fs.FS { return sub("static") }
