package audit

import (
	"context"
	"iter"
	"time"
)

// Store is the append-only audit storage contract.
type Store interface {
	// AppendAudit seals e as the next entry in the chain and persists it.
	AppendAudit(ctx context.Context, e *Entry) error

	// QueryAudit returns a lazy, finite sequence of entries matching the
	// filter in timestamp order (ties broken by sequence). Each call yields
	// a fresh cursor.
	QueryAudit(ctx context.Context, filter *Filter) iter.Seq2[*Entry, error]

	// CountAudit returns the number of entries matching the filter.
	CountAudit(ctx context.Context, filter *Filter) (int64, error)

	// PurgeAudit removes entries created before the given time and appends
	// e, stamped with the removed count (SetRemoved), in the same unit of
	// work. On any error nothing is removed and e is not appended. It
	// returns how many entries were removed. Callers gate it.
	PurgeAudit(ctx context.Context, before time.Time, e *Entry) (int64, error)
}
