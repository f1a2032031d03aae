package role

import (
	"fmt"
	"sort"

	"github.com/xraph/bastion/permission"
)

// Definition is one row of the role matrix.
type Definition struct {
	Name        Role                    `json:"name" yaml:"name"`
	Description string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Rank        int                     `json:"rank" yaml:"rank"`
	Permissions []permission.Permission `json:"permissions" yaml:"permissions"`
}

// Registry is the validated, immutable role matrix.
type Registry struct {
	catalog *permission.Catalog
	order   []Definition
	sets    map[Role]permission.Set
}

// NewRegistry validates defs against catalog. Every violation is a
// permission.ErrConfigurationInvalid error: the process must not start.
func NewRegistry(catalog *permission.Catalog, defs ...Definition) (*Registry, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: nil permission catalog", permission.ErrConfigurationInvalid)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: role matrix is empty", permission.ErrConfigurationInvalid)
	}

	reg := &Registry{
		catalog: catalog,
		order:   make([]Definition, 0, len(defs)),
		sets:    make(map[Role]permission.Set, len(defs)),
	}
	for _, d := range defs {
		if !d.Name.Valid() {
			return nil, fmt.Errorf("%w: %w: %q", permission.ErrConfigurationInvalid, ErrUnknownRole, d.Name)
		}
		if _, dup := reg.sets[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate role %q", permission.ErrConfigurationInvalid, d.Name)
		}
		set := make(permission.Set, len(d.Permissions))
		for _, p := range d.Permissions {
			if !catalog.Exists(p) {
				return nil, fmt.Errorf("%w: role %q grants %q which is not in the catalog",
					permission.ErrConfigurationInvalid, d.Name, p)
			}
			if set.Has(p) {
				return nil, fmt.Errorf("%w: role %q lists %q twice",
					permission.ErrConfigurationInvalid, d.Name, p)
			}
			set[p] = struct{}{}
		}
		def := d
		def.Permissions = set.Slice()
		reg.sets[d.Name] = set
		reg.order = append(reg.order, def)
	}

	sort.SliceStable(reg.order, func(i, j int) bool {
		if reg.order[i].Rank != reg.order[j].Rank {
			return reg.order[i].Rank > reg.order[j].Rank
		}
		return reg.order[i].Name < reg.order[j].Name
	})
	return reg, nil
}

// Catalog returns the catalog the registry was validated against.
func (r *Registry) Catalog() *permission.Catalog { return r.catalog }

// Exists reports whether role is registered.
func (r *Registry) Exists(role Role) bool {
	_, ok := r.sets[role]
	return ok
}

// Has reports whether role grants p. Unregistered roles grant nothing.
func (r *Registry) Has(role Role, p permission.Permission) bool {
	return r.sets[role].Has(p)
}

// PermissionsOf returns a copy of the permission set for role.
func (r *Registry) PermissionsOf(role Role) (permission.Set, error) {
	set, ok := r.sets[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return set.Clone(), nil
}

// Lookup returns the definition of role.
func (r *Registry) Lookup(role Role) (Definition, bool) {
	for _, d := range r.order {
		if d.Name == role {
			return copyDefinition(d), true
		}
	}
	return Definition{}, false
}

// Roles returns the registered roles ordered by rank (highest first), then
// name. Each call returns a fresh slice.
func (r *Registry) Roles() []Definition {
	out := make([]Definition, len(r.order))
	for i, d := range r.order {
		out[i] = copyDefinition(d)
	}
	return out
}

// Supersedes reports whether a ranks strictly above b. It is used for
// display and reporting; the engine never derives permissions from it.
func (r *Registry) Supersedes(a, b Role) bool {
	da, okA := r.Lookup(a)
	db, okB := r.Lookup(b)
	return okA && okB && da.Rank > db.Rank
}

func copyDefinition(d Definition) Definition {
	c := d
	c.Permissions = append([]permission.Permission(nil), d.Permissions...)
	return c
}
