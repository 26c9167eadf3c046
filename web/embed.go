// Package web holds the browser front end for the text encrypt and decrypt API.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed public/*
var staticFiles embed.FS

// GetFileSystem returns the embedded UI rooted at public/
func GetFileSystem() http.FileSystem {
	fsys, err := fs.Sub(staticFiles, "public")
	if err != nil {
		panic(err)
	}
	return http.FS(fsys)
}
