// Package web embeds the dashboard page and its assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// Assets is the static directory rooted at its top.
func Assets() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Index returns the dashboard page.
func Index() ([]byte, error) {
	return static.ReadFile("static/index.html")
}
