// Package sqlite provides a SQLite implementation of the Bastion composite
// store using grove ORM with Go-based migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// pageSize bounds each query QueryAudit issues while iterating.
const pageSize = 256

// Store is a SQLite implementation of the composite Bastion store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
	now func() time.Time
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
		now: time.Now,
	}
}

// Open opens the SQLite database at dsn and returns a store on it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("bastion/sqlite: open: %w", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("bastion/sqlite: open: %w", err)
	}
	return New(db), nil
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("bastion/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("bastion/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// Principal operations
// ──────────────────────────────────────────────────

func (s *Store) GetPrincipal(ctx context.Context, principalID string) (*principal.Principal, error) {
	m := new(principalModel)
	err := s.sdb.NewSelect(m).Where("id = ?", principalID).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("principal %q: %w", principalID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("bastion: get principal: %w", err)
	}
	p, err := principalFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("bastion: get principal: %w", err)
	}
	return p, nil
}

func (s *Store) SavePrincipal(ctx context.Context, p *principal.Principal) error {
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = principal.StatusActive
	}
	m, err := principalToModel(p)
	if err != nil {
		return fmt.Errorf("bastion: save principal: %w", err)
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict(`(id) DO UPDATE SET display_name = excluded.display_name, email = excluded.email,
role = excluded.role, status = excluded.status, department = excluded.department,
metadata = excluded.metadata, version = excluded.version, updated_at_ms = excluded.updated_at_ms`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: save principal: %w", err)
	}
	return nil
}

func (s *Store) ListPrincipals(ctx context.Context, filter *principal.ListFilter) ([]*principal.Principal, error) {
	var models []principalModel
	q := s.sdb.NewSelect(&models).OrderExpr("id ASC")
	if filter != nil {
		if filter.Role != "" {
			q = q.Where("role = ?", string(filter.Role))
		}
		if filter.Status != "" {
			q = q.Where("status = ?", string(filter.Status))
		}
		if filter.Department != "" {
			q = q.Where("department = ?", filter.Department)
		}
		if filter.Search != "" {
			like := "%" + filter.Search + "%"
			q = q.Where("(display_name LIKE ? OR email LIKE ? OR id LIKE ?)", like, like, like)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bastion: list principals: %w", err)
	}
	result := make([]*principal.Principal, len(models))
	for i := range models {
		p, err := principalFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("bastion: list principals: %w", err)
		}
		result[i] = p
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Commit and audit append
// ──────────────────────────────────────────────────

func (s *Store) Commit(ctx context.Context, c *store.Change) error {
	if c == nil || c.Entry == nil {
		return errors.New("bastion/sqlite: commit without audit entry")
	}
	return s.write(ctx, c.Principal, c.ExpectedVersion, c.Entry)
}

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	return s.write(ctx, nil, 0, e)
}

// write appends e and, when p is set, saves p under a version guard, all
// in one transaction.
func (s *Store) write(ctx context.Context, p *principal.Principal, expected int64, e *audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("bastion: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	if p != nil {
		current := new(principalModel)
		if err := tx.NewSelect(current).Where("id = ?", p.ID).Scan(ctx); err != nil {
			if isNoRows(err) {
				return fmt.Errorf("principal %q: %w", p.ID, principal.ErrNotFound)
			}
			return fmt.Errorf("bastion: read principal: %w", err)
		}
		if current.Version != expected {
			return fmt.Errorf("principal %q at version %d, expected %d: %w",
				p.ID, current.Version, expected, principal.ErrVersionConflict)
		}
	}

	if err := appendTx(ctx, tx, e, s.now()); err != nil {
		return err
	}

	var saved *principal.Principal
	if p != nil {
		saved = p.Clone()
		saved.Version = expected + 1
		saved.UpdatedAt = e.CreatedAt
		pm, err := principalToModel(saved)
		if err != nil {
			return fmt.Errorf("bastion: save principal: %w", err)
		}
		res, err := tx.NewUpdate(pm).WherePK().Where("version = ?", expected).Exec(ctx)
		if err != nil {
			return fmt.Errorf("bastion: save principal: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("bastion: save principal: %w", err)
		} else if n == 0 {
			return fmt.Errorf("principal %q: %w", p.ID, principal.ErrVersionConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bastion: commit tx: %w", err)
	}
	if saved != nil {
		p.Version = saved.Version
		p.UpdatedAt = saved.UpdatedAt
	}
	return nil
}

// appendTx seals e against the chain head and inserts it. The head row is
// advanced with a compare on its previous seq so a concurrent writer
// surfaces as ErrConcurrentWrite.
func appendTx(ctx context.Context, tx *sqlitedriver.SqliteTx, e *audit.Entry, now time.Time) error {
	hm := new(auditHeadModel)
	if err := tx.NewSelect(hm).Where("id = ?", 1).Scan(ctx); err != nil {
		return fmt.Errorf("bastion: read audit head: %w", err)
	}
	head, err := hm.head()
	if err != nil {
		return fmt.Errorf("bastion: read audit head: %w", err)
	}
	prevSeq := head.Seq
	head = head.Next(e, now)

	em, err := auditEntryToModel(e)
	if err != nil {
		return fmt.Errorf("bastion: append audit: %w", err)
	}
	if _, err := tx.NewInsert(em).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: append audit: %w", err)
	}

	next := &auditHeadModel{ID: 1, Seq: head.Seq, Hash: head.Hash.String(), AtMs: head.At.UnixMilli()}
	res, err := tx.NewUpdate(next).WherePK().Where("seq = ?", prevSeq).Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: advance audit head: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("bastion: advance audit head: %w", err)
	} else if n == 0 {
		return store.ErrConcurrentWrite
	}
	return nil
}

// ──────────────────────────────────────────────────
// Audit queries
// ──────────────────────────────────────────────────

func (s *Store) QueryAudit(ctx context.Context, filter *audit.Filter) iter.Seq2[*audit.Entry, error] {
	return func(yield func(*audit.Entry, error) bool) {
		var (
			afterSeq int64
			yielded  int
		)
		for {
			size := pageSize
			if filter != nil && filter.Limit > 0 && filter.Limit-yielded < size {
				size = filter.Limit - yielded
			}
			if size <= 0 {
				return
			}
			var models []auditEntryModel
			q := s.sdb.NewSelect(&models).
				Where("seq > ?", afterSeq).
				OrderExpr("created_at_ms ASC, seq ASC").
				Limit(size)
			q = applyAuditFilter(q, filter)
			if err := q.Scan(ctx); err != nil {
				yield(nil, fmt.Errorf("bastion: query audit: %w", err))
				return
			}
			for i := range models {
				e, err := auditEntryFromModel(&models[i])
				if err != nil {
					yield(nil, fmt.Errorf("bastion: query audit: %w", err))
					return
				}
				afterSeq = e.Seq
				yielded++
				if !yield(e, nil) {
					return
				}
			}
			if len(models) < size {
				return
			}
		}
	}
}

func (s *Store) CountAudit(ctx context.Context, filter *audit.Filter) (int64, error) {
	q := applyAuditFilter(s.sdb.NewSelect((*auditEntryModel)(nil)), filter)
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count audit: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeAudit(ctx context.Context, before time.Time, e *audit.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("bastion: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	res, err := tx.NewDelete((*auditEntryModel)(nil)).
		Where("created_at_ms < ?", before.UnixMilli()).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: purge audit: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bastion: purge audit rows: %w", err)
	}
	e.SetRemoved(removed)
	if err := appendTx(ctx, tx, e, s.now()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("bastion: commit tx: %w", err)
	}
	return removed, nil
}

// applyAuditFilter narrows q by the non-zero filter fields.
func applyAuditFilter[Q interface{ Where(string, ...any) Q }](q Q, filter *audit.Filter) Q {
	if filter == nil {
		return q
	}
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.TargetID != "" {
		q = q.Where("target_id = ?", filter.TargetID)
	}
	if filter.Principal != "" {
		q = q.Where("(actor_id = ? OR target_id = ?)", filter.Principal, filter.Principal)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Permission != "" {
		q = q.Where("permission = ?", string(filter.Permission))
	}
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", string(filter.Outcome))
	}
	if filter.After != nil {
		q = q.Where("created_at_ms >= ?", filter.After.UnixMilli())
	}
	if filter.Before != nil {
		q = q.Where("created_at_ms < ?", filter.Before.UnixMilli())
	}
	return q
}
