package sqlite

import (
	"iter"
	"testing"
	"time"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
)

func sealed(t *testing.T) []*audit.Entry {
	t.Helper()
	at := time.Date(2026, 5, 4, 12, 30, 0, 123456789, time.UTC)
	var head audit.Head
	out := []*audit.Entry{
		{
			ActorID:    "admin",
			TargetID:   "u1",
			Action:     audit.ActionAssignRole,
			Permission: permission.UserRoleAssign,
			Outcome:    audit.OutcomeAllowed,
			OldRole:    role.Viewer,
			NewRole:    role.User,
			Source:     "10.0.0.1",
			Metadata:   map[string]string{"changed": "true"},
		},
		{
			ActorID:    "u1",
			TargetID:   "admin",
			Action:     audit.ActionSuspend,
			Permission: permission.UserUpdate,
			Outcome:    audit.OutcomeDenied,
			Reason:     "not_granted",
			OldStatus:  principal.StatusActive,
		},
	}
	for _, e := range out {
		head = head.Next(e, at)
	}
	return out
}

func TestAuditEntryModelPreservesChain(t *testing.T) {
	var decoded []*audit.Entry
	for _, e := range sealed(t) {
		m, err := auditEntryToModel(e)
		if err != nil {
			t.Fatal(err)
		}
		back, err := auditEntryFromModel(m)
		if err != nil {
			t.Fatal(err)
		}
		if back.ComputeHash() != e.Hash {
			t.Fatalf("seq %d: hash changed through the model", e.Seq)
		}
		if !back.CreatedAt.Equal(e.CreatedAt) || back.ID.String() != e.ID.String() {
			t.Fatalf("seq %d: identity changed: %+v", e.Seq, back)
		}
		decoded = append(decoded, back)
	}

	var seq iter.Seq2[*audit.Entry, error] = func(yield func(*audit.Entry, error) bool) {
		for _, e := range decoded {
			if !yield(e, nil) {
				return
			}
		}
	}
	n, err := audit.Verify(seq)
	if err != nil || n != 2 {
		t.Fatalf("verify = %d, %v", n, err)
	}
}

func TestAuditEntryModelRejectsBadHash(t *testing.T) {
	e := sealed(t)[0]
	m, err := auditEntryToModel(e)
	if err != nil {
		t.Fatal(err)
	}
	m.Hash = "not-hex"
	if _, err := auditEntryFromModel(m); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}
