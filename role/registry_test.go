package role

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/bastion/permission"
)

func TestDefaultRegistryClosure(t *testing.T) {
	reg := DefaultRegistry()
	cat := reg.Catalog()
	for _, d := range reg.Roles() {
		set, err := reg.PermissionsOf(d.Name)
		if err != nil {
			t.Fatal(err)
		}
		for p := range set {
			if !cat.Exists(p) {
				t.Errorf("role %s grants %s outside the catalog", d.Name, p)
			}
		}
	}
}

func TestRegistryRejectsPermissionOutsideCatalog(t *testing.T) {
	_, err := NewRegistry(permission.DefaultCatalog(), Definition{
		Name:        Viewer,
		Permissions: []permission.Permission{permission.WorkflowRead, "workflow:teleport"},
	})
	if !errors.Is(err, permission.ErrConfigurationInvalid) {
		t.Fatalf("expected ErrConfigurationInvalid, got %v", err)
	}
}

func TestRegistryRejectsBadDefinitions(t *testing.T) {
	cat := permission.DefaultCatalog()
	tests := []struct {
		name string
		defs []Definition
	}{
		{"empty", nil},
		{"unknown role", []Definition{{Name: "root"}}},
		{"duplicate role", []Definition{{Name: Viewer}, {Name: Viewer}}},
		{"duplicate permission", []Definition{{Name: Viewer, Permissions: []permission.Permission{permission.WorkflowRead, permission.WorkflowRead}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(cat, tt.defs...); !errors.Is(err, permission.ErrConfigurationInvalid) {
				t.Fatalf("expected ErrConfigurationInvalid, got %v", err)
			}
		})
	}
	if _, err := NewRegistry(nil, Builtin()...); !errors.Is(err, permission.ErrConfigurationInvalid) {
		t.Fatalf("expected ErrConfigurationInvalid for nil catalog, got %v", err)
	}
}

func TestSampleMatrix(t *testing.T) {
	reg := DefaultRegistry()
	tests := []struct {
		role Role
		perm permission.Permission
		want bool
	}{
		{Viewer, permission.WorkflowRead, true},
		{Viewer, permission.WorkflowExecute, false},
		{Manager, permission.WorkflowApprove, true},
		{Admin, permission.WorkflowApprove, false},
		{Admin, permission.SystemConfig, true},
		{Admin, permission.UserRoleAssign, true},
		{User, permission.UserRoleAssign, false},
		{SuperAdmin, permission.SystemBackup, true},
		{SuperAdmin, permission.SystemAudit, true},
	}
	for _, tt := range tests {
		if got := reg.Has(tt.role, tt.perm); got != tt.want {
			t.Errorf("Has(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}

	viewer, err := reg.PermissionsOf(Viewer)
	if err != nil {
		t.Fatal(err)
	}
	want := permission.NewSet(permission.WorkflowRead, permission.IntegrationRead, permission.AnalyticsRead)
	if !viewer.SubsetOf(want) || !want.SubsetOf(viewer) {
		t.Fatalf("viewer permissions = %v", viewer.Slice())
	}
}

func TestPermissionsOfUnknownRole(t *testing.T) {
	reg, err := NewRegistry(permission.DefaultCatalog(), Definition{Name: Viewer})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.PermissionsOf(Admin); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if reg.Has(Admin, permission.WorkflowRead) {
		t.Fatal("unregistered role must grant nothing")
	}
}

func TestPermissionsOfReturnsCopy(t *testing.T) {
	reg := DefaultRegistry()
	set, _ := reg.PermissionsOf(Viewer)
	set[permission.SystemBackup] = struct{}{}
	if reg.Has(Viewer, permission.SystemBackup) {
		t.Fatal("mutating PermissionsOf result changed the registry")
	}
}

func TestRolesOrderIsStable(t *testing.T) {
	reg := DefaultRegistry()
	want := []Role{SuperAdmin, Admin, Manager, User, Viewer}
	for i := 0; i < 3; i++ {
		got := reg.Roles()
		if len(got) != len(want) {
			t.Fatalf("expected %d roles, got %d", len(want), len(got))
		}
		for j := range want {
			if got[j].Name != want[j] {
				t.Fatalf("position %d: got %s, want %s", j, got[j].Name, want[j])
			}
		}
		got[0].Permissions[0] = "tampered:value"
	}
	if !reg.Supersedes(Admin, Manager) || reg.Supersedes(Viewer, User) || reg.Supersedes(Admin, Admin) {
		t.Fatal("unexpected Supersedes result")
	}
}

func TestParse(t *testing.T) {
	if r, err := Parse("manager"); err != nil || r != Manager {
		t.Fatalf("Parse(manager) = %q, %v", r, err)
	}
	if _, err := Parse("owner"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestLoadMatrix(t *testing.T) {
	const doc = `
roles:
  - name: viewer
    rank: 10
    permissions: [workflow:read, analytics:read]
  - name: manager
    rank: 30
    description: team lead
    permissions:
      - workflow:read
      - workflow:approve
`
	reg, err := Load(strings.NewReader(doc), permission.DefaultCatalog())
	if err != nil {
		t.Fatal(err)
	}
	if !reg.Has(Manager, permission.WorkflowApprove) || reg.Has(Viewer, permission.WorkflowApprove) {
		t.Fatal("matrix not loaded as written")
	}
	if reg.Roles()[0].Name != Manager {
		t.Fatal("expected manager first by rank")
	}
}

func TestLoadMatrixRejects(t *testing.T) {
	tests := map[string]string{
		"empty":          ``,
		"unknown field":  "roles:\n  - name: viewer\n    inherits: user\n",
		"unknown perm":   "roles:\n  - name: viewer\n    permissions: [workflow:fly]\n",
		"unknown role":   "roles:\n  - name: owner\n",
		"malformed yaml": "roles: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(doc), permission.DefaultCatalog()); !errors.Is(err, permission.ErrConfigurationInvalid) {
				t.Fatalf("expected ErrConfigurationInvalid, got %v", err)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	reg := DefaultRegistry()
	var buf bytes.Buffer
	if err := Encode(&buf, reg); err != nil {
		t.Fatal(err)
	}
	again, err := Load(&buf, permission.DefaultCatalog())
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range reg.Roles() {
		a, _ := reg.PermissionsOf(d.Name)
		b, err := again.PermissionsOf(d.Name)
		if err != nil {
			t.Fatal(err)
		}
		if !a.SubsetOf(b) || !b.SubsetOf(a) {
			t.Fatalf("role %s changed across encode/load", d.Name)
		}
	}
}
