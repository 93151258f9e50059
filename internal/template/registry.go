package template

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// ErrNoGeneric is returned when a registry lacks the generic fallback template.
var ErrNoGeneric = errors.New("registry needs exactly one generic template")

// Registry is the read-only set of known templates, ordered by ID.
// It is safe for concurrent use.
type Registry struct {
	templates []*Template
	byID      map[string]*Template
	generic   *Template
}

// NewRegistry compiles templates and builds a registry. Exactly one template
// must be marked generic.
func NewRegistry(templates []*Template) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		if err := t.Compile(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		r.byID[t.ID] = t
		if t.Generic {
			if r.generic != nil {
				return nil, ErrNoGeneric
			}
			r.generic = t
			continue
		}
		r.templates = append(r.templates, t)
	}
	if r.generic == nil {
		return nil, ErrNoGeneric
	}
	sort.Slice(r.templates, func(i, j int) bool { return r.templates[i].ID < r.templates[j].ID })
	return r, nil
}

// Templates returns the non-generic templates ordered by ID.
func (r *Registry) Templates() []*Template {
	return append([]*Template(nil), r.templates...)
}

// All returns every template including the generic one, ordered by ID.
func (r *Registry) All() []*Template {
	all := append(r.Templates(), r.generic)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Get looks up a template by ID.
func (r *Registry) Get(id string) (*Template, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Generic returns the fallback template.
func (r *Registry) Generic() *Template { return r.generic }

// Len returns the number of templates including the generic one.
func (r *Registry) Len() int { return len(r.byID) }

// Parse decodes one or more YAML documents, each a single template.
func Parse(data []byte) ([]*Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var out []*Template
	for {
		var t Template
		err := dec.Decode(&t)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode template: %w", err)
		}
		out = append(out, &t)
	}
	return out, nil
}

// Builtin returns freshly decoded copies of the embedded templates.
func Builtin() ([]*Template, error) {
	return parseFS(builtinFS, "builtin")
}

// LoadBuiltin builds a registry from the embedded templates.
func LoadBuiltin() (*Registry, error) {
	templates, err := Builtin()
	if err != nil {
		return nil, err
	}
	return NewRegistry(templates)
}

// Load builds a registry from the embedded templates (unless includeBuiltin
// is false) plus every *.yaml / *.yml file in dir. A template in dir
// replaces a built-in template with the same ID.
func Load(dir string, includeBuiltin bool) (*Registry, error) {
	var base []*Template
	if includeBuiltin {
		b, err := Builtin()
		if err != nil {
			return nil, err
		}
		base = b
	}
	if dir == "" {
		return NewRegistry(base)
	}

	extra, err := parseFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to load templates from %s: %w", dir, err)
	}
	merged := make(map[string]*Template, len(base)+len(extra))
	for _, t := range base {
		merged[t.ID] = t
	}
	for _, t := range extra {
		if _, ok := merged[t.ID]; ok {
			slog.Debug("Template override", "id", t.ID, "dir", dir)
		}
		if t.Generic {
			for id, existing := range merged {
				if existing.Generic {
					delete(merged, id)
				}
			}
		}
		merged[t.ID] = t
	}
	all := make([]*Template, 0, len(merged))
	for _, t := range merged {
		all = append(all, t)
	}
	return NewRegistry(all)
}

func parseFS(fsys fs.FS, root string) ([]*Template, error) {
	var out []*Template
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		ts, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, ts...)
		return nil
	})
	return out, err
}
