package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store/memory"
)

func TestLRUHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(WithTTL(time.Minute))

	if _, ok := c.Get(ctx, "u1", permission.WorkflowRead); ok {
		t.Fatal("expected cache miss")
	}

	c.Set(ctx, "u1", permission.WorkflowRead, &bastion.Decision{Allowed: true, Reason: bastion.ReasonGranted})
	got, ok := c.Get(ctx, "u1", permission.WorkflowRead)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Allowed {
		t.Fatal("expected allowed")
	}

	// Callers may not mutate the cached value.
	got.Allowed = false
	again, _ := c.Get(ctx, "u1", permission.WorkflowRead)
	if !again.Allowed {
		t.Fatal("cached decision was mutated through a returned pointer")
	}
}

func TestLRUTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(WithTTL(time.Millisecond))

	c.Set(ctx, "u1", permission.WorkflowRead, &bastion.Decision{Allowed: true})
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, "u1", permission.WorkflowRead); ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
}

func TestLRUMaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(WithMaxSize(2))

	c.Set(ctx, "u1", permission.WorkflowRead, &bastion.Decision{})
	c.Set(ctx, "u2", permission.WorkflowRead, &bastion.Decision{})
	c.Set(ctx, "u3", permission.WorkflowRead, &bastion.Decision{})

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if _, ok := c.Get(ctx, "u1", permission.WorkflowRead); ok {
		t.Fatal("expected least recently used entry to be evicted")
	}
}

func TestLRUInvalidatePrincipal(t *testing.T) {
	ctx := context.Background()
	c := NewLRU()

	c.Set(ctx, "u1", permission.WorkflowRead, &bastion.Decision{Allowed: true})
	c.Set(ctx, "u1", permission.WorkflowExecute, &bastion.Decision{Allowed: true})
	c.Set(ctx, "u2", permission.WorkflowRead, &bastion.Decision{Allowed: true})

	c.InvalidatePrincipal(ctx, "u1")

	if _, ok := c.Get(ctx, "u1", permission.WorkflowRead); ok {
		t.Fatal("expected u1 entries removed")
	}
	if _, ok := c.Get(ctx, "u1", permission.WorkflowExecute); ok {
		t.Fatal("expected u1 entries removed")
	}
	if _, ok := c.Get(ctx, "u2", permission.WorkflowRead); !ok {
		t.Fatal("expected u2 entry kept")
	}

	c.Purge(ctx)
	if c.Len() != 0 {
		t.Fatalf("len after purge = %d", c.Len())
	}
}

func TestLRUWithEngine(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	c := NewLRU()
	eng, err := bastion.NewEngine(bastion.WithStore(s), bastion.WithCache(c))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []*principal.Principal{
		{ID: "admin", Role: role.Admin},
		{ID: "u1", Role: role.Viewer},
	} {
		if err := s.SavePrincipal(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if ok, _ := eng.Can(ctx, "u1", permission.WorkflowCreate); ok {
		t.Fatal("viewer allowed to create")
	}
	if _, err := eng.AssignRole(ctx, "admin", "u1", role.User); err != nil {
		t.Fatal(err)
	}
	if ok, _ := eng.Can(ctx, "u1", permission.WorkflowCreate); !ok {
		t.Fatal("stale decision served after role change")
	}
}

func TestLRUEnforceIgnoresStaleDecision(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	eng, err := bastion.NewEngine(bastion.WithStore(s), bastion.WithCache(NewLRU(WithTTL(time.Hour))))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []*principal.Principal{
		{ID: "a2", Role: role.Admin},
		{ID: "u1", Role: role.Viewer},
	} {
		if err := s.SavePrincipal(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if ok, _ := eng.Can(ctx, "a2", permission.UserRoleAssign); !ok {
		t.Fatal("admin should hold user:role_assign")
	}

	// Demoted behind the engine's back, as another replica would.
	if err := s.SavePrincipal(ctx, &principal.Principal{ID: "a2", Role: role.Viewer}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := eng.Can(ctx, "a2", permission.UserRoleAssign); !ok {
		t.Fatal("expected Can to serve the cached decision until it expires")
	}

	_, err = eng.AssignRole(ctx, "a2", "u1", role.Admin)
	if !errors.Is(err, bastion.ErrForbidden) {
		t.Fatalf("AssignRole err = %v, want ErrForbidden", err)
	}
	got, err := s.GetPrincipal(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != role.Viewer {
		t.Fatalf("u1 role = %s, want viewer", got.Role)
	}
}
