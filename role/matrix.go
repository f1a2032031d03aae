package role

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xraph/bastion/permission"
)

// Matrix is the on-disk form of a role matrix.
//
//	roles:
//	  - name: viewer
//	    rank: 10
//	    permissions: [workflow:read, integration:read, analytics:read]
type Matrix struct {
	Roles []Definition `yaml:"roles"`
}

// Load decodes a YAML matrix from r and validates it against catalog.
// Unknown fields are rejected.
func Load(r io.Reader, catalog *permission.Catalog) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Matrix
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: role matrix is empty", permission.ErrConfigurationInvalid)
		}
		return nil, fmt.Errorf("%w: decode role matrix: %w", permission.ErrConfigurationInvalid, err)
	}
	return NewRegistry(catalog, m.Roles...)
}

// LoadFile reads a YAML matrix from path.
func LoadFile(path string, catalog *permission.Catalog) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open role matrix: %w", permission.ErrConfigurationInvalid, err)
	}
	defer f.Close()
	return Load(f, catalog)
}

// Encode writes reg as a YAML matrix.
func Encode(w io.Writer, reg *Registry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Matrix{Roles: reg.Roles()}); err != nil {
		return fmt.Errorf("role: encode matrix: %w", err)
	}
	return enc.Close()
}
