package catalog

import (
	"bytes"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// Entry is one product in a catalog price file.
type Entry struct {
	Name  string `yaml:"name" json:"name"`
	Price int64  `yaml:"price" json:"price"`
}

// File is the on-disk layout of a catalog price file:
//
//	products:
//	  - name: Aquafina
//	    price: 10000
type File struct {
	Products []Entry `yaml:"products" json:"products"`
}

// entrySchema constrains every seeded product.
const entrySchema = `
#Product: {
	name:  string & =~"\\S"
	price: int & >0
}
products: [...#Product]
`

// LoadFile reads and validates a YAML catalog price file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	if err := Validate(f.Products); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return f.Products, nil
}

// Validate checks entries against the catalog schema and rejects names
// that collide after normalization.
func Validate(entries []Entry) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(entrySchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}
	v := schema.Unify(ctx.Encode(File{Products: entries}))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid catalog: %s", cueerrors.Details(err, nil))
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := Normalize(e.Name)
		if seen[key] {
			return fmt.Errorf("invalid catalog: duplicate product %q", e.Name)
		}
		seen[key] = true
	}
	return nil
}
