//go:build ui

// Package ui optionally embeds the built clinician dashboard. The dist/
// directory is produced by the frontend build and compiled in only with
// -tags ui; the default build serves the API alone.
package ui

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var distFS embed.FS

// DistFS returns the embedded dashboard filesystem rooted at dist/.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}
