package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the path reported for the default document.
const DefaultKey = "*"

var (
	ErrInvalidManifest = errors.New("invalid asset manifest")
	ErrDuplicatePath   = errors.New("duplicate asset path")
)

// Entry is a single servable resource. Payload must be treated as
// read-only; it is shared between all requests.
type Entry struct {
	Path        string
	ContentType string
	Payload     []byte
	Default     bool
}

// Table maps request paths to entries.
type Table struct {
	entries  map[string]Entry
	fallback Entry
}

// Load reads the manifest from fsys and every file it references.
func Load(fsys fs.FS, manifest string) (*Table, error) {
	if manifest == "" {
		manifest = DefaultManifest
	}

	raw, err := fs.ReadFile(fsys, manifest)
	if err != nil {
		return nil, fmt.Errorf("read manifest %q: %w", manifest, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	t := &Table{entries: make(map[string]Entry, len(m.Assets))}

	for _, me := range m.Assets {
		if _, exists := t.entries[me.Path]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, me.Path)
		}

		payload, err := fs.ReadFile(fsys, me.File)
		if err != nil {
			return nil, fmt.Errorf("read asset %q for %s: %w", me.File, me.Path, err)
		}

		t.entries[me.Path] = Entry{
			Path:        me.Path,
			ContentType: me.ContentType,
			Payload:     payload,
		}
	}

	payload, err := fs.ReadFile(fsys, m.Default.File)
	if err != nil {
		return nil, fmt.Errorf("read default document %q: %w", m.Default.File, err)
	}

	t.fallback = Entry{
		Path:        DefaultKey,
		ContentType: m.Default.ContentType,
		Payload:     payload,
		Default:     true,
	}

	return t, nil
}

// Resolve returns the entry for path, or the default document when path is
// not in the table.
func (t *Table) Resolve(path string) Entry {
	if e, ok := t.entries[path]; ok {
		return e
	}
	return t.fallback
}

// Lookup reports whether path has its own entry.
func (t *Table) Lookup(path string) (Entry, bool) {
	e, ok := t.entries[path]
	return e, ok
}

func (t *Table) Default() Entry {
	return t.fallback
}

// Entries returns all entries sorted by path, followed by the default.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries)+1)
	for _, e := range t.entries {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})

	return append(out, t.fallback)
}

func (t *Table) Len() int {
	return len(t.entries) + 1
}
