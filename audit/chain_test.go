package audit

import (
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
)

func buildChain(t *testing.T, n int) []*Entry {
	t.Helper()
	var (
		head    Head
		entries []*Entry
	)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range n {
		e := &Entry{
			ActorID:    "admin-1",
			TargetID:   "user-1",
			Action:     ActionAssignRole,
			Permission: permission.UserRoleAssign,
			Outcome:    OutcomeAllowed,
			OldRole:    role.User,
			NewRole:    role.Manager,
			Metadata:   map[string]string{"b": "2", "a": "1"},
		}
		head = head.Next(e, base.Add(time.Duration(i)*time.Second))
		entries = append(entries, e)
	}
	return entries
}

func seqOf(entries []*Entry) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func TestHeadNextAssignsChain(t *testing.T) {
	entries := buildChain(t, 3)
	if !entries[0].PrevHash.IsZero() {
		t.Fatal("first entry should link to genesis")
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: seq = %d", i, e.Seq)
		}
		if e.ID.IsNil() {
			t.Errorf("entry %d: no id", i)
		}
		if i > 0 && e.PrevHash != entries[i-1].Hash {
			t.Errorf("entry %d does not link to %d", i, i-1)
		}
	}
}

func TestHeadNextMonotonicTime(t *testing.T) {
	var head Head
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &Entry{ActorID: "a", Action: ActionAuthorize, Outcome: OutcomeDenied}
	head = head.Next(a, now)
	b := &Entry{ActorID: "a", Action: ActionAuthorize, Outcome: OutcomeDenied}
	head.Next(b, now.Add(-time.Minute))
	if b.CreatedAt.Before(a.CreatedAt) {
		t.Fatalf("timestamp went backwards: %v < %v", b.CreatedAt, a.CreatedAt)
	}
}

func TestHeadNextTruncatesTime(t *testing.T) {
	var head Head
	e := &Entry{ActorID: "a", Action: ActionAuthorize, Outcome: OutcomeAllowed}
	head.Next(e, time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.FixedZone("x", 3600)))
	if e.CreatedAt.Nanosecond() != 123000000 {
		t.Fatalf("nanos = %d, want millisecond precision", e.CreatedAt.Nanosecond())
	}
	if e.CreatedAt.Location() != time.UTC {
		t.Fatalf("location = %v, want UTC", e.CreatedAt.Location())
	}
}

func TestVerifyIntact(t *testing.T) {
	n, err := Verify(seqOf(buildChain(t, 5)))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 5 {
		t.Fatalf("verified %d, want 5", n)
	}
}

func TestVerifyEmpty(t *testing.T) {
	n, err := Verify(seqOf(nil))
	if err != nil || n != 0 {
		t.Fatalf("Verify(empty) = %d, %v", n, err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]*Entry) []*Entry
	}{
		{"reason", func(es []*Entry) []*Entry { es[2].Reason = "edited"; return es }},
		{"outcome", func(es []*Entry) []*Entry { es[1].Outcome = OutcomeDenied; return es }},
		{"metadata", func(es []*Entry) []*Entry { es[3].Metadata["a"] = "9"; return es }},
		{"status", func(es []*Entry) []*Entry { es[0].NewStatus = principal.StatusSuspended; return es }},
		{"timestamp", func(es []*Entry) []*Entry { es[4].CreatedAt = es[4].CreatedAt.Add(time.Second); return es }},
		{"removed", func(es []*Entry) []*Entry { return append(es[:2], es[3:]...) }},
		{"reordered", func(es []*Entry) []*Entry { es[1], es[2] = es[2], es[1]; return es }},
		{"rehashed", func(es []*Entry) []*Entry {
			es[2].Reason = "edited"
			es[2].Hash = es[2].ComputeHash()
			return es
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := tt.mutate(buildChain(t, 5))
			_, err := Verify(seqOf(entries))
			if !errors.Is(err, ErrChainBroken) {
				t.Fatalf("Verify err = %v, want ErrChainBroken", err)
			}
		})
	}
}

func TestVerifyAfterPrefixRemoved(t *testing.T) {
	entries := buildChain(t, 5)
	n, err := Verify(seqOf(entries[2:]))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 3 {
		t.Fatalf("verified %d, want 3", n)
	}
}

func TestVerifyPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Verify(func(yield func(*Entry, error) bool) { yield(nil, boom) })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestHashMetadataOrderIndependent(t *testing.T) {
	a := &Entry{ActorID: "x", Action: "a", Outcome: OutcomeAllowed, Metadata: map[string]string{"k1": "v1", "k2": "v2"}}
	b := a.Clone()
	b.Metadata = map[string]string{"k2": "v2", "k1": "v1"}
	if a.ComputeHash() != b.ComputeHash() {
		t.Fatal("metadata insertion order changed hash")
	}
}

func TestHashFieldBoundaries(t *testing.T) {
	a := &Entry{ActorID: "ab", TargetID: "c", Action: "x", Outcome: OutcomeAllowed}
	b := &Entry{ActorID: "a", TargetID: "bc", Action: "x", Outcome: OutcomeAllowed}
	if a.ComputeHash() == b.ComputeHash() {
		t.Fatal("field boundaries are ambiguous")
	}
}

func TestParseHash(t *testing.T) {
	e := buildChain(t, 1)[0]
	parsed, err := ParseHash(e.Hash.String())
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != e.Hash {
		t.Fatal("round trip mismatch")
	}
	if h, err := ParseHash(""); err != nil || !h.IsZero() {
		t.Fatalf("ParseHash(\"\") = %v, %v", h, err)
	}
	if _, err := ParseHash("abcd"); err == nil {
		t.Fatal("expected error for short hash")
	}
	if _, err := ParseHash("zz"); err == nil {
		t.Fatal("expected error for non-hex")
	}
}

func TestFilterMatch(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{ActorID: "a", TargetID: "b", Action: ActionSuspend, Outcome: OutcomeAllowed, CreatedAt: at}
	before := at.Add(time.Second)
	after := at
	tests := []struct {
		name string
		f    *Filter
		want bool
	}{
		{"nil", nil, true},
		{"empty", &Filter{}, true},
		{"actor", &Filter{ActorID: "a"}, true},
		{"wrong actor", &Filter{ActorID: "b"}, false},
		{"principal as target", &Filter{Principal: "b"}, true},
		{"principal unrelated", &Filter{Principal: "c"}, false},
		{"action", &Filter{Action: ActionReactivate}, false},
		{"outcome", &Filter{Outcome: OutcomeDenied}, false},
		{"range inclusive start", &Filter{After: &after, Before: &before}, true},
		{"range exclusive end", &Filter{Before: &after}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Match(e); got != tt.want {
				t.Fatalf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntryValidate(t *testing.T) {
	if err := (&Entry{Action: "a", Outcome: OutcomeAllowed}).Validate(); err == nil {
		t.Error("expected error without actor")
	}
	if err := (&Entry{ActorID: "a", Outcome: OutcomeAllowed}).Validate(); err == nil {
		t.Error("expected error without action")
	}
	if err := (&Entry{ActorID: "a", Action: "a", Outcome: "maybe"}).Validate(); err == nil {
		t.Error("expected error for bad outcome")
	}
	if err := (&Entry{ActorID: "a", Action: "a", Outcome: OutcomeDenied}).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
