//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("bastion_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, dsn)
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

func TestPostgresCommitAndVerify(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	if err := s.SavePrincipal(ctx, &principal.Principal{ID: "u1", DisplayName: "User One", Role: role.User}); err != nil {
		t.Fatal(err)
	}

	p, err := s.GetPrincipal(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	p.Role = role.Manager
	err = s.Commit(ctx, &store.Change{
		Principal:       p,
		ExpectedVersion: p.Version,
		Entry: &audit.Entry{
			ActorID: "admin", TargetID: "u1", Action: audit.ActionAssignRole,
			Outcome: audit.OutcomeAllowed, OldRole: role.User, NewRole: role.Manager,
			Metadata: map[string]string{"changed": "true"},
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	stale := p.Clone()
	stale.Role = role.Viewer
	err = s.Commit(ctx, &store.Change{Principal: stale, ExpectedVersion: 0, Entry: &audit.Entry{
		ActorID: "admin", TargetID: "u1", Action: audit.ActionAssignRole, Outcome: audit.OutcomeAllowed,
	}})
	if !errors.Is(err, principal.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, _ := s.GetPrincipal(ctx, "u1")
	if got.Role != role.Manager || got.Version != 1 {
		t.Fatalf("role=%s version=%d", got.Role, got.Version)
	}

	if n, err := audit.Verify(s.QueryAudit(ctx, nil)); err != nil || n != 1 {
		t.Fatalf("Verify = %d, %v", n, err)
	}
}

func TestPostgresConcurrentAppendsStayChained(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	const writers, perWriter = 8, 20
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				errs <- s.AppendAudit(ctx, &audit.Entry{
					ActorID: "writer", Action: audit.ActionAuthorize, Outcome: audit.OutcomeDenied,
					Reason: string(rune('a' + w)),
				})
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	n, err := audit.Verify(s.QueryAudit(ctx, nil))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != writers*perWriter {
		t.Fatalf("verified %d, want %d", n, writers*perWriter)
	}
	if c, _ := s.CountAudit(ctx, &audit.Filter{ActorID: "writer"}); c != writers*perWriter {
		t.Fatalf("count = %d", c)
	}
}

func TestPostgresPurge(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := setupStore(t)
	s.now = func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	}
	for range 4 {
		if err := s.AppendAudit(ctx, &audit.Entry{ActorID: "a", Action: audit.ActionAuthorize, Outcome: audit.OutcomeAllowed}); err != nil {
			t.Fatal(err)
		}
	}
	purge := &audit.Entry{ActorID: "sa", Action: audit.ActionPurge, Outcome: audit.OutcomeAllowed}
	removed, err := s.PurgeAudit(ctx, time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC), purge)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	if purge.Seq != 5 || purge.Metadata[audit.MetaRemoved] != "2" {
		t.Fatalf("purge entry seq=%d metadata=%v", purge.Seq, purge.Metadata)
	}
	n, err := audit.Verify(s.QueryAudit(ctx, nil))
	if err != nil {
		t.Fatalf("Verify after purge: %v", err)
	}
	if n != 3 {
		t.Fatalf("verified %d, want 3", n)
	}
}
