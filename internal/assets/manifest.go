package assets

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultManifest is the manifest file name used when none is configured.
const DefaultManifest = "manifest.yaml"

// ManifestEntry maps a request path to a file in the asset filesystem.
type ManifestEntry struct {
	Path        string `yaml:"path"`
	ContentType string `yaml:"content_type"`
	File        string `yaml:"file"`
}

// DefaultEntry describes the document served for paths not in the table.
type DefaultEntry struct {
	ContentType string `yaml:"content_type"`
	File        string `yaml:"file"`
}

// Manifest is the on-disk description of a Table.
type Manifest struct {
	Assets  []ManifestEntry `yaml:"assets"`
	Default *DefaultEntry   `yaml:"default"`
}

func (m Manifest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Assets, validation.Each(validation.By(validateManifestEntry))),
		validation.Field(&m.Default, validation.Required.Error("a default document is required")),
	)
}

func (d DefaultEntry) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ContentType, validation.Required),
		validation.Field(&d.File, validation.Required),
	)
}

func validateManifestEntry(value interface{}) error {
	e, ok := value.(ManifestEntry)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ManifestEntry")
	}

	return validation.ValidateStruct(&e,
		validation.Field(&e.Path,
			validation.Required,
			validation.By(func(value interface{}) error {
				if p, _ := value.(string); !strings.HasPrefix(p, "/") {
					return validation.NewError("validation_invalid_path", "must start with /")
				}
				return nil
			}),
		),
		validation.Field(&e.ContentType, validation.Required),
		validation.Field(&e.File, validation.Required),
	)
}
