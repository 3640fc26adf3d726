package assets

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// Embedded returns the built-in asset filesystem, rooted at the directory
// holding manifest.yaml.
func Embedded() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// LoadEmbedded builds the table from the built-in assets.
func LoadEmbedded() (*Table, error) {
	return Load(Embedded(), DefaultManifest)
}
