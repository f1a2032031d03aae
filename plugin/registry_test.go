package plugin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
)

// testPlugin implements Plugin + RoleAssigned + AfterAuthorize.
type testPlugin struct {
	roleAssignedCalled   bool
	afterAuthorizeCalled bool
	lastReason           string
}

func (t *testPlugin) Name() string { return "test-plugin" }

func (t *testPlugin) OnRoleAssigned(_ context.Context, _ *audit.Entry) error {
	t.roleAssignedCalled = true
	return nil
}

func (t *testPlugin) OnAfterAuthorize(_ context.Context, _ string, _ permission.Permission, _ bool, reason string) error {
	t.afterAuthorizeCalled = true
	t.lastReason = reason
	return nil
}

// minimalPlugin only implements Plugin (no hooks).
type minimalPlugin struct{}

func (m *minimalPlugin) Name() string { return "minimal" }

// failingPlugin returns an error from its hook.
type failingPlugin struct{}

func (f *failingPlugin) Name() string { return "failing" }

func (f *failingPlugin) OnPrincipalSuspended(_ context.Context, _ *audit.Entry) error {
	return errors.New("pager unreachable")
}

func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(slog.Default())

	tp := &testPlugin{}
	reg.Register(tp)
	reg.Register(&minimalPlugin{})

	if len(reg.Plugins()) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(reg.Plugins()))
	}

	// Should dispatch RoleAssigned to testPlugin only.
	reg.EmitRoleAssigned(ctx, &audit.Entry{ActorID: "a1", TargetID: "u2"})
	if !tp.roleAssignedCalled {
		t.Fatal("OnRoleAssigned was not called")
	}

	reg.EmitAfterAuthorize(ctx, "u1", permission.WorkflowRead, false, "not_granted")
	if !tp.afterAuthorizeCalled || tp.lastReason != "not_granted" {
		t.Fatal("OnAfterAuthorize was not called with the reason")
	}

	// Should not panic on hooks with no listeners.
	reg.EmitAccessDenied(ctx, &audit.Entry{})
	reg.EmitPrincipalReactivated(ctx, &audit.Entry{})
	reg.EmitAuditPurged(ctx, 3, &audit.Entry{})
	reg.EmitShutdown(ctx)
}

func TestRegistryHookErrorLogged(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))
	reg.Register(&failingPlugin{})

	reg.EmitPrincipalSuspended(context.Background(), &audit.Entry{})

	out := buf.String()
	if !strings.Contains(out, "plugin hook error") || !strings.Contains(out, "failing") {
		t.Fatalf("expected hook error to be logged, got %q", out)
	}
}
