package permission

import "fmt"

// Definition describes one catalog entry.
type Definition struct {
	Name        Permission `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// Catalog is the immutable, validated set of known permissions.
type Catalog struct {
	defs  []Definition
	index map[Permission]int
}

// NewCatalog validates defs and builds a Catalog. Malformed identifiers
// and duplicates are reported as ErrConfigurationInvalid.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: permission catalog is empty", ErrConfigurationInvalid)
	}
	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[Permission]int, len(defs)),
	}
	for _, d := range defs {
		if _, err := Parse(string(d.Name)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
		}
		if _, dup := c.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate permission %q", ErrConfigurationInvalid, d.Name)
		}
		c.index[d.Name] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Exists reports whether p is part of the catalog.
func (c *Catalog) Exists(p Permission) bool {
	_, ok := c.index[p]
	return ok
}

// Lookup returns the definition of p.
func (c *Catalog) Lookup(p Permission) (Definition, bool) {
	i, ok := c.index[p]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// All returns the definitions in declaration order. The slice is a copy.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len returns the number of permissions in the catalog.
func (c *Catalog) Len() int { return len(c.defs) }

// Builtin lists the permissions compiled into Bastion.
func Builtin() []Definition {
	return []Definition{
		{WorkflowRead, "View workflows and their runs"},
		{WorkflowCreate, "Create workflows"},
		{WorkflowUpdate, "Edit workflows"},
		{WorkflowDelete, "Delete workflows"},
		{WorkflowExecute, "Trigger workflow runs"},
		{WorkflowApprove, "Approve gated workflow steps"},
		{IntegrationRead, "View integrations"},
		{IntegrationCreate, "Connect integrations"},
		{IntegrationUpdate, "Reconfigure integrations"},
		{IntegrationDelete, "Disconnect integrations"},
		{AnalyticsRead, "View analytics dashboards"},
		{AnalyticsExport, "Export analytics reports"},
		{BillingRead, "View invoices and plan"},
		{BillingManage, "Change plan and payment methods"},
		{UserRead, "View users"},
		{UserCreate, "Invite users"},
		{UserUpdate, "Edit, suspend and reactivate users"},
		{UserDelete, "Remove users"},
		{UserRoleAssign, "Change a user's role"},
		{SystemConfig, "Change system settings"},
		{SystemBackup, "Run and restore backups"},
		{SystemAudit, "Read and purge the audit log"},
	}
}

// DefaultCatalog returns the catalog built from Builtin. It panics if the
// builtin table is inconsistent, which is a programming error.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(Builtin()...)
	if err != nil {
		panic(err)
	}
	return c
}
