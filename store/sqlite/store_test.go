package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "bastion.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Running twice must be a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	return s
}

func save(t *testing.T, s *Store, id string, r role.Role) {
	t.Helper()
	err := s.SavePrincipal(context.Background(), &principal.Principal{
		ID:          id,
		DisplayName: id,
		Email:       id + "@example.com",
		Role:        r,
		Department:  "ops",
		Metadata:    map[string]any{"team": "core"},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPrincipalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	save(t, s, "alice", role.Manager)

	p, err := s.GetPrincipal(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != role.Manager || p.Status != principal.StatusActive || p.Email != "alice@example.com" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not stored: %+v", p)
	}
	if p.Metadata["team"] != "core" {
		t.Fatalf("metadata = %v", p.Metadata)
	}

	if _, err := s.GetPrincipal(ctx, "nobody"); !errors.Is(err, principal.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	save(t, s, "bob", role.Viewer)
	list, err := s.ListPrincipals(ctx, &principal.ListFilter{Role: role.Viewer})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "bob" {
		t.Fatalf("list = %+v", list)
	}
}

func TestCommitVersionGuard(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	save(t, s, "u1", role.Viewer)

	p, err := s.GetPrincipal(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	p.Role = role.User
	change := &store.Change{
		Principal:       p,
		ExpectedVersion: p.Version,
		Entry: &audit.Entry{
			ActorID: "admin", TargetID: "u1", Action: audit.ActionAssignRole,
			Outcome: audit.OutcomeAllowed, OldRole: role.Viewer, NewRole: role.User,
		},
	}
	if err := s.Commit(ctx, change); err != nil {
		t.Fatal(err)
	}
	if p.Version != 1 {
		t.Fatalf("version = %d, want 1", p.Version)
	}

	stale := &store.Change{
		Principal:       p,
		ExpectedVersion: 0,
		Entry:           &audit.Entry{ActorID: "admin", TargetID: "u1", Action: audit.ActionSuspend, Outcome: audit.OutcomeAllowed},
	}
	if err := s.Commit(ctx, stale); !errors.Is(err, principal.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	if n, _ := s.CountAudit(ctx, nil); n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}
}

func TestEngineOnSQLite(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	save(t, s, "sa", role.SuperAdmin)
	save(t, s, "admin", role.Admin)
	save(t, s, "viewer", role.Viewer)

	eng, err := bastion.NewEngine(bastion.WithStore(s))
	if err != nil {
		t.Fatal(err)
	}

	if ok, err := eng.Can(ctx, "admin", permission.UserRoleAssign); err != nil || !ok {
		t.Fatalf("Can = %v, %v", ok, err)
	}
	res, err := eng.AssignRole(ctx, "admin", "viewer", role.User)
	if err != nil {
		t.Fatal(err)
	}
	if res.Principal.Role != role.User || res.Principal.Version != 1 {
		t.Fatalf("result = %+v", res.Principal)
	}
	if _, err := eng.AssignRole(ctx, "viewer", "admin", role.Viewer); !errors.Is(err, bastion.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := eng.Suspend(ctx, "admin", "viewer"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Reactivate(ctx, "admin", "viewer"); err != nil {
		t.Fatal(err)
	}

	if n, err := eng.CountAudit(ctx, nil); err != nil || n != 4 {
		t.Fatalf("count = %d, %v", n, err)
	}
	if n, _ := eng.CountAudit(ctx, &audit.Filter{Outcome: audit.OutcomeDenied}); n != 1 {
		t.Fatalf("denied = %d, want 1", n)
	}
	if n, err := eng.VerifyAudit(ctx); err != nil || n != 4 {
		t.Fatalf("verify = %d, %v", n, err)
	}

	// Entries are timestamped in ms; wait so the cutoff is strictly after them.
	time.Sleep(5 * time.Millisecond)
	removed, err := eng.PurgeAudit(ctx, "sa", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if removed != 4 {
		t.Fatalf("removed = %d, want 4", removed)
	}
	var purges []*audit.Entry
	for e, err := range eng.QueryAudit(ctx, nil) {
		if err != nil {
			t.Fatal(err)
		}
		purges = append(purges, e)
	}
	if len(purges) != 1 || purges[0].Action != audit.ActionPurge || purges[0].Metadata[audit.MetaRemoved] != "4" {
		t.Fatalf("retained = %+v", purges)
	}
	if n, err := eng.VerifyAudit(ctx); err != nil || n != 1 {
		t.Fatalf("verify after purge = %d, %v", n, err)
	}
}
