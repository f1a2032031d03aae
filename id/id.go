// Package id defines the TypeID-based identifier of audit entries.
//
// Audit entry IDs are K-sortable (UUIDv7-based), globally unique and
// URL-safe in the format "audit_suffix". Principal IDs are opaque strings
// owned by the host identity store and are not minted here.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// PrefixAuditEntry is the TypeID prefix of audit entry IDs.
const PrefixAuditEntry = "audit"

// AuditEntryID identifies an audit log entry. The zero value is the nil ID;
// stores replace it with a fresh one when sealing an entry.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type AuditEntryID struct {
	inner typeid.TypeID
	valid bool
}

// NewAuditEntryID generates a new unique audit entry ID.
func NewAuditEntryID() AuditEntryID {
	tid, err := typeid.Generate(PrefixAuditEntry)
	if err != nil {
		panic(fmt.Sprintf("id: generate audit id: %v", err))
	}
	return AuditEntryID{inner: tid, valid: true}
}

// ParseAuditEntryID parses s and validates the "audit" prefix.
func ParseAuditEntryID(s string) (AuditEntryID, error) {
	if s == "" {
		return AuditEntryID{}, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return AuditEntryID{}, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if p := tid.Prefix(); p != PrefixAuditEntry {
		return AuditEntryID{}, fmt.Errorf("id: expected prefix %q, got %q", PrefixAuditEntry, p)
	}
	return AuditEntryID{inner: tid, valid: true}, nil
}

// String returns the full TypeID string. It is empty for the nil ID.
func (i AuditEntryID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// IsNil reports whether i is the zero value.
func (i AuditEntryID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i AuditEntryID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the nil ID.
func (i *AuditEntryID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = AuditEntryID{}
		return nil
	}
	parsed, err := ParseAuditEntryID(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
