// Package metrics is a Bastion plugin that exports authorization and
// administration counters to Prometheus.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/plugin"
)

// Compile-time hook checks.
var (
	_ plugin.Plugin               = (*Plugin)(nil)
	_ plugin.AfterAuthorize       = (*Plugin)(nil)
	_ plugin.AccessDenied         = (*Plugin)(nil)
	_ plugin.RoleAssigned         = (*Plugin)(nil)
	_ plugin.PrincipalSuspended   = (*Plugin)(nil)
	_ plugin.PrincipalReactivated = (*Plugin)(nil)
	_ plugin.AuditPurged          = (*Plugin)(nil)
)

// Plugin records Prometheus counters for engine events.
type Plugin struct {
	AuthorizeTotal   *prometheus.CounterVec
	DeniedTotal      *prometheus.CounterVec
	MutationsTotal   *prometheus.CounterVec
	AuditPurgedTotal prometheus.Counter
}

// New creates the metrics plugin and registers its collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Plugin {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Plugin{
		AuthorizeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_authorize_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"outcome", "reason"},
		),
		DeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_denied_total",
				Help: "Total number of denied mutating actions",
			},
			[]string{"action"},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bastion_mutations_total",
				Help: "Total number of committed administrative operations",
			},
			[]string{"action", "changed"},
		),
		AuditPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bastion_audit_purged_entries_total",
				Help: "Total number of audit entries removed by purges",
			},
		),
	}
	reg.MustRegister(p.AuthorizeTotal, p.DeniedTotal, p.MutationsTotal, p.AuditPurgedTotal)
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "metrics" }

func (p *Plugin) OnAfterAuthorize(_ context.Context, _ string, _ permission.Permission, allowed bool, reason string) error {
	outcome := audit.OutcomeDenied
	if allowed {
		outcome = audit.OutcomeAllowed
	}
	p.AuthorizeTotal.WithLabelValues(string(outcome), reason).Inc()
	return nil
}

func (p *Plugin) OnAccessDenied(_ context.Context, e *audit.Entry) error {
	p.DeniedTotal.WithLabelValues(e.Action).Inc()
	return nil
}

func (p *Plugin) OnRoleAssigned(_ context.Context, e *audit.Entry) error {
	p.mutation(e)
	return nil
}

func (p *Plugin) OnPrincipalSuspended(_ context.Context, e *audit.Entry) error {
	p.mutation(e)
	return nil
}

func (p *Plugin) OnPrincipalReactivated(_ context.Context, e *audit.Entry) error {
	p.mutation(e)
	return nil
}

func (p *Plugin) OnAuditPurged(_ context.Context, removed int64, e *audit.Entry) error {
	p.AuditPurgedTotal.Add(float64(removed))
	p.MutationsTotal.WithLabelValues(e.Action, strconv.FormatBool(removed > 0)).Inc()
	return nil
}

func (p *Plugin) mutation(e *audit.Entry) {
	changed := e.Metadata["changed"]
	if changed == "" {
		changed = "true"
	}
	p.MutationsTotal.WithLabelValues(e.Action, changed).Inc()
}
