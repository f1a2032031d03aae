package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store/memory"
)

func TestHooksIncrementCounters(t *testing.T) {
	ctx := context.Background()
	m := New(prometheus.NewRegistry())

	_ = m.OnAfterAuthorize(ctx, "u1", permission.WorkflowRead, true, "granted")
	_ = m.OnAfterAuthorize(ctx, "u1", permission.SystemAudit, false, "not_granted")
	_ = m.OnAccessDenied(ctx, &audit.Entry{Action: audit.ActionAssignRole})
	_ = m.OnRoleAssigned(ctx, &audit.Entry{Action: audit.ActionAssignRole, Metadata: map[string]string{"changed": "false"}})
	_ = m.OnAuditPurged(ctx, 7, &audit.Entry{Action: audit.ActionPurge})

	expected := `
# HELP bastion_authorize_total Total number of authorization decisions
# TYPE bastion_authorize_total counter
bastion_authorize_total{outcome="allowed",reason="granted"} 1
bastion_authorize_total{outcome="denied",reason="not_granted"} 1
`
	if err := testutil.CollectAndCompare(m.AuthorizeTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
	if got := testutil.ToFloat64(m.DeniedTotal.WithLabelValues(audit.ActionAssignRole)); got != 1 {
		t.Errorf("denied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MutationsTotal.WithLabelValues(audit.ActionAssignRole, "false")); got != 1 {
		t.Errorf("mutations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AuditPurgedTotal); got != 7 {
		t.Errorf("purged = %v, want 7", got)
	}
}

func TestPluginWithEngine(t *testing.T) {
	ctx := context.Background()
	m := New(prometheus.NewRegistry())
	s := memory.New()
	eng, err := bastion.NewEngine(bastion.WithStore(s), bastion.WithPlugin(m))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []*principal.Principal{
		{ID: "admin", Role: role.Admin},
		{ID: "u1", Role: role.User},
	} {
		if err := s.SavePrincipal(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := eng.Suspend(ctx, "u1", "admin"); err == nil {
		t.Fatal("expected denial")
	}
	if _, err := eng.Suspend(ctx, "admin", "u1"); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.DeniedTotal.WithLabelValues(audit.ActionSuspend)); got != 1 {
		t.Errorf("denied = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MutationsTotal.WithLabelValues(audit.ActionSuspend, "true")); got != 1 {
		t.Errorf("mutations = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.AuthorizeTotal); got != 2 {
		t.Errorf("authorize series = %d, want 2", got)
	}
}
