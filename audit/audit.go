// Package audit defines the append-only, hash-chained audit log.
//
// Every entry is sealed with a BLAKE3 keyed hash over its canonical encoding
// and the hash of the entry before it. Stores assign the sequence number,
// timestamp and chain links under their write serialization; nothing in the
// package allows an entry to be changed once appended.
package audit

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
)

// ErrChainBroken is returned by Verify when a link does not match.
var ErrChainBroken = errors.New("bastion: audit chain broken")

// Outcome is the result recorded for an entry.
type Outcome string

const (
	// OutcomeAllowed records an action that was permitted.
	OutcomeAllowed Outcome = "allowed"

	// OutcomeDenied records an action that was refused.
	OutcomeDenied Outcome = "denied"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool { return o == OutcomeAllowed || o == OutcomeDenied }

// Actions recorded by the engine. Callers may record their own action
// names through Enforce.
const (
	ActionAuthorize  = "authorize"
	ActionAssignRole = "role.assign"
	ActionSuspend    = "principal.suspend"
	ActionReactivate = "principal.reactivate"
	ActionPurge      = "audit.purge"
)

// MetaRemoved is the metadata key under which a purge entry records how many
// entries it removed.
const MetaRemoved = "removed"

// Entry is a single immutable audit record.
type Entry struct {
	ID         id.AuditEntryID       `json:"id" db:"id"`
	Seq        int64                 `json:"seq" db:"seq"`
	ActorID    string                `json:"actor_id" db:"actor_id"`
	TargetID   string                `json:"target_id,omitempty" db:"target_id"`
	Action     string                `json:"action" db:"action"`
	Permission permission.Permission `json:"permission,omitempty" db:"permission"`
	Outcome    Outcome               `json:"outcome" db:"outcome"`
	Reason     string                `json:"reason,omitempty" db:"reason"`
	OldRole    role.Role             `json:"old_role,omitempty" db:"old_role"`
	NewRole    role.Role             `json:"new_role,omitempty" db:"new_role"`
	OldStatus  principal.Status      `json:"old_status,omitempty" db:"old_status"`
	NewStatus  principal.Status      `json:"new_status,omitempty" db:"new_status"`
	Source     string                `json:"source,omitempty" db:"source"`
	Metadata   map[string]string     `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time             `json:"created_at" db:"created_at"`
	PrevHash   Hash                  `json:"prev_hash" db:"prev_hash"`
	Hash       Hash                  `json:"hash" db:"hash"`
}

// Validate checks the fields a caller must supply before appending.
func (e *Entry) Validate() error {
	if e.ActorID == "" {
		return fmt.Errorf("audit: entry has no actor")
	}
	if e.Action == "" {
		return fmt.Errorf("audit: entry has no action")
	}
	if !e.Outcome.Valid() {
		return fmt.Errorf("audit: invalid outcome %q", e.Outcome)
	}
	return nil
}

// Involves reports whether principalID is the actor or the target.
func (e *Entry) Involves(principalID string) bool {
	return e.ActorID == principalID || e.TargetID == principalID
}

// SetRemoved records n under MetaRemoved. Stores call it on a purge entry
// before sealing it.
func (e *Entry) SetRemoved(n int64) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 1)
	}
	e.Metadata[MetaRemoved] = strconv.FormatInt(n, 10)
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Filter selects entries for Query and Count. Zero fields match anything.
// The time range is [After, Before).
type Filter struct {
	ActorID    string                `json:"actor_id,omitempty"`
	TargetID   string                `json:"target_id,omitempty"`
	Principal  string                `json:"principal,omitempty"`
	Action     string                `json:"action,omitempty"`
	Permission permission.Permission `json:"permission,omitempty"`
	Outcome    Outcome               `json:"outcome,omitempty"`
	After      *time.Time            `json:"after,omitempty"`
	Before     *time.Time            `json:"before,omitempty"`
	Limit      int                   `json:"limit,omitempty"`
}

// Match reports whether e satisfies the filter, ignoring Limit.
func (f *Filter) Match(e *Entry) bool {
	if f == nil {
		return true
	}
	switch {
	case f.ActorID != "" && e.ActorID != f.ActorID:
		return false
	case f.TargetID != "" && e.TargetID != f.TargetID:
		return false
	case f.Principal != "" && !e.Involves(f.Principal):
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.Permission != "" && e.Permission != f.Permission:
		return false
	case f.Outcome != "" && e.Outcome != f.Outcome:
		return false
	case f.After != nil && e.CreatedAt.Before(*f.After):
		return false
	case f.Before != nil && !e.CreatedAt.Before(*f.Before):
		return false
	}
	return true
}
