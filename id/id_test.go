package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/bastion/id"
)

func TestNewAuditEntryID(t *testing.T) {
	a, b := id.NewAuditEntryID(), id.NewAuditEntryID()
	if !strings.HasPrefix(a.String(), "audit_") {
		t.Fatalf("expected audit_ prefix, got %q", a.String())
	}
	if a.String() == b.String() {
		t.Fatalf("two consecutive IDs are equal: %q", a.String())
	}
	if a.IsNil() {
		t.Fatal("generated ID reported nil")
	}
}

func TestParseAuditEntryID(t *testing.T) {
	original := id.NewAuditEntryID()
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"round trip", original.String(), false},
		{"empty", "", true},
		{"garbage", "not-an-id", true},
		{"wrong prefix", "role_01h2xcejqtf2nbrexx3vqjhp41", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := id.ParseAuditEntryID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.in {
				t.Fatalf("round trip: %q != %q", got.String(), tt.in)
			}
		})
	}
}

func TestNilAuditEntryID(t *testing.T) {
	var i id.AuditEntryID
	if !i.IsNil() || i.String() != "" {
		t.Fatalf("zero value: nil=%v string=%q", i.IsNil(), i.String())
	}
}

func TestAuditEntryIDJSON(t *testing.T) {
	type doc struct {
		ID id.AuditEntryID `json:"id"`
	}
	in := doc{ID: id.NewAuditEntryID()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out doc
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID.String() != in.ID.String() {
		t.Fatalf("mismatch: %q != %q", out.ID.String(), in.ID.String())
	}

	var empty doc
	if err := json.Unmarshal([]byte(`{"id":""}`), &empty); err != nil {
		t.Fatal(err)
	}
	if !empty.ID.IsNil() {
		t.Fatal("empty id should decode to nil")
	}
}
