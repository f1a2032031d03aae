// Package postgres provides a PostgreSQL implementation of the Bastion
// composite store using grove ORM with Go-based migrations. Commits run in a
// single transaction that locks the audit chain head row, so appends are
// serialized across processes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the pg migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// pageSize bounds each query QueryAudit issues while iterating.
const pageSize = 256

// headID is the primary key of the single chain head row.
const headID = 1

// Store is a PostgreSQL implementation of the composite Bastion store.
type Store struct {
	db     *grove.DB
	pgdb   *pgdriver.PgDB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithLogger sets the logger used for migration progress.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock used to timestamp audit entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new PostgreSQL store.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		pgdb:   pgdriver.Unwrap(db),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn and returns a store on it. Close closes the pool.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pgdb := pgdriver.New()
	if err := pgdb.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("bastion/postgres: connect: %w", err)
	}
	db, err := grove.Open(pgdb)
	if err != nil {
		_ = pgdb.Close()
		return nil, fmt.Errorf("bastion/postgres: connect: %w", err)
	}
	return New(db, opts...), nil
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("bastion/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	result, err := orch.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("bastion/postgres: migration failed: %w", err)
	}
	s.logger.Debug("bastion/postgres: migrations applied", slog.Any("result", result))
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

// isNoRows matches pgx's no-rows error, which also satisfies sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// withTx runs fn in a read-committed transaction. Row locks taken inside fn
// provide the serialization.
func (s *Store) withTx(ctx context.Context, fn func(*pgdriver.PgTx) error) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, &driver.TxOptions{IsolationLevel: driver.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("bastion: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bastion: commit tx: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Principal operations
// ──────────────────────────────────────────────────

func (s *Store) GetPrincipal(ctx context.Context, principalID string) (*principal.Principal, error) {
	m := new(principalModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", principalID).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("principal %q: %w", principalID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("bastion: get principal: %w", err)
	}
	return principalFromModel(m), nil
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
	_, err := s.pgdb.NewInsert(principalToModel(p)).
		OnConflict(`(id) DO UPDATE SET display_name = EXCLUDED.display_name, email = EXCLUDED.email,
role = EXCLUDED.role, status = EXCLUDED.status, department = EXCLUDED.department,
metadata = EXCLUDED.metadata, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bastion: save principal: %w", err)
	}
	return nil
}

func (s *Store) ListPrincipals(ctx context.Context, filter *principal.ListFilter) ([]*principal.Principal, error) {
	var models []principalModel
	q := s.pgdb.NewSelect(&models).OrderExpr("id ASC")
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
			q = q.Where("(display_name ILIKE ? OR email ILIKE ? OR id ILIKE ?)", like, like, like)
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
		result[i] = principalFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Commit and audit append
// ──────────────────────────────────────────────────

func (s *Store) Commit(ctx context.Context, c *store.Change) error {
	if c == nil || c.Entry == nil {
		return errors.New("bastion/postgres: commit without audit entry")
	}
	return s.write(ctx, c.Principal, c.ExpectedVersion, c.Entry)
}

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	return s.write(ctx, nil, 0, e)
}

func (s *Store) write(ctx context.Context, p *principal.Principal, expected int64, e *audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	var saved *principal.Principal
	err := s.withTx(ctx, func(tx *pgdriver.PgTx) error {
		saved = nil
		// Lock order: principal row, then chain head.
		if p != nil {
			current := new(principalModel)
			if err := tx.NewSelect(current).Where("id = ?", p.ID).ForUpdate().Scan(ctx); err != nil {
				if isNoRows(err) {
					return fmt.Errorf("principal %q: %w", p.ID, principal.ErrNotFound)
				}
				return fmt.Errorf("bastion: lock principal: %w", err)
			}
			if current.Version != expected {
				return fmt.Errorf("principal %q at version %d, expected %d: %w",
					p.ID, current.Version, expected, principal.ErrVersionConflict)
			}
		}

		if err := s.appendTx(ctx, tx, e); err != nil {
			return err
		}

		if p != nil {
			next := p.Clone()
			next.Version = expected + 1
			next.UpdatedAt = e.CreatedAt
			if _, err := tx.NewUpdate(principalToModel(next)).WherePK().Exec(ctx); err != nil {
				return fmt.Errorf("bastion: save principal: %w", err)
			}
			saved = next
		}
		return nil
	})
	if err != nil {
		return err
	}
	if saved != nil {
		p.Version = saved.Version
		p.UpdatedAt = saved.UpdatedAt
	}
	return nil
}

// appendTx locks the chain head, seals e against it and inserts it.
func (s *Store) appendTx(ctx context.Context, tx *pgdriver.PgTx, e *audit.Entry) error {
	hm := new(auditHeadModel)
	if err := tx.NewSelect(hm).Where("id = ?", headID).ForUpdate().Scan(ctx); err != nil {
		return fmt.Errorf("bastion: lock audit head: %w", err)
	}
	head, err := hm.head()
	if err != nil {
		return fmt.Errorf("bastion: lock audit head: %w", err)
	}
	head = head.Next(e, s.now())

	if _, err := tx.NewInsert(auditEntryToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("bastion: append audit: %w", err)
	}
	if _, err := tx.NewUpdate(headToModel(head)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("bastion: advance audit head: %w", err)
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
			// Each page is read whole so no connection is held while the
			// caller consumes it.
			var models []auditEntryModel
			q := s.pgdb.NewSelect(&models).
				Where("seq > ?", afterSeq).
				OrderExpr("created_at ASC, seq ASC").
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
	q := applyAuditFilter(s.pgdb.NewSelect((*auditEntryModel)(nil)), filter)
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
	var removed int64
	err := s.withTx(ctx, func(tx *pgdriver.PgTx) error {
		res, err := tx.NewDelete((*auditEntryModel)(nil)).Where("created_at < ?", before).Exec(ctx)
		if err != nil {
			return fmt.Errorf("bastion: purge audit: %w", err)
		}
		if removed, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("bastion: purge audit rows: %w", err)
		}
		e.SetRemoved(removed)
		return s.appendTx(ctx, tx, e)
	})
	if err != nil {
		return 0, err
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
		q = q.Where("created_at >= ?", *filter.After)
	}
	if filter.Before != nil {
		q = q.Where("created_at < ?", *filter.Before)
	}
	return q
}
