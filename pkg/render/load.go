package render

import (
	"fmt"
	"os"

	"github.com/dmitrymomot/dispatchkit/pkg/config"
)

// File is the on-disk template catalogue.
type File struct {
	Templates []Template `yaml:"templates"`
}

// Parse decodes a YAML template catalogue.
func Parse(data []byte) ([]Template, error) {
	var f File
	if err := config.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	return f.Templates, nil
}

// LoadFile reads the catalogue at path and replaces the renderer's templates
// with it plus extra. The swap is atomic: a broken file leaves the current
// set in place.
func (r *Renderer) LoadFile(path string, extra ...Template) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("render: read templates: %w", err)
	}
	ts, err := Parse(data)
	if err != nil {
		return err
	}
	return r.Replace(merge(extra, ts))
}

// merge overlays override on base by template name.
func merge(base, override []Template) []Template {
	out := make([]Template, 0, len(base)+len(override))
	idx := make(map[string]int, len(base)+len(override))
	for _, set := range [][]Template{base, override} {
		for _, t := range set {
			if i, ok := idx[t.Name]; ok {
				out[i] = t
				continue
			}
			idx[t.Name] = len(out)
			out = append(out, t)
		}
	}
	return out
}
