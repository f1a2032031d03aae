// Package store defines the aggregate persistence interface. The principal
// and audit subsystems each define their own store interface, and the
// composite Store adds the atomic Commit that binds a principal mutation to
// its audit entry.
// Backends: Postgres, SQLite, MongoDB and Memory.
package store

import (
	"context"
	"errors"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/principal"
)

// ErrConcurrentWrite is returned when another writer advanced the audit
// chain head during a commit. The operation is safe to retry.
var ErrConcurrentWrite = errors.New("bastion: concurrent audit write")

// Change is a principal mutation and the audit entry that records it.
type Change struct {
	// Principal is the new state to save. Nil records the entry only.
	Principal *principal.Principal

	// ExpectedVersion must equal the stored version; the saved principal
	// gets ExpectedVersion+1.
	ExpectedVersion int64

	// Entry is sealed and appended in the same unit of work.
	Entry *audit.Entry
}

// Store is the aggregate persistence interface.
// A single backend (postgres, sqlite, mongo, memory) implements all of it.
type Store interface {
	principal.Store
	audit.Store

	// Commit applies the change atomically. On any error neither the
	// principal nor the audit log is modified. A stale ExpectedVersion
	// fails with principal.ErrVersionConflict.
	Commit(ctx context.Context, c *Change) error

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
