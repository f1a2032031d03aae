// Package mongo provides a MongoDB implementation of the Bastion composite
// store. Reads and index migration go through grove; commits run in a
// driver session transaction, which requires a replica set or sharded
// cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/store"
)

// Collection name constants.
const (
	colPrincipals   = "bastion_principals"
	colAuditEntries = "bastion_audit_entries"
	colAuditHead    = "bastion_audit_head"
)

// headID is the _id of the single chain head document.
const headID = "head"

// pageSize bounds each find QueryAudit issues while iterating.
const pageSize = 256

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Bastion store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
	now func() time.Time
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
		now: time.Now,
	}
}

// Migrate creates indexes for all bastion collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("bastion/mongo: migrate %s indexes: %w", col, err)
		}
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all bastion collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colPrincipals: {
			{Keys: bson.D{{Key: "role", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "department", Value: 1}}},
		},
		colAuditEntries: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "target_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Principal operations
// ──────────────────────────────────────────────────

func (s *Store) GetPrincipal(ctx context.Context, principalID string) (*principal.Principal, error) {
	var m principalModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": principalID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("principal %q: %w", principalID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("bastion: get principal: %w", err)
	}
	return principalFromModel(&m), nil
}

func (s *Store) SavePrincipal(ctx context.Context, p *principal.Principal) error {
	t := s.now().UTC().Truncate(time.Millisecond)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t
	}
	p.UpdatedAt = t
	if p.Status == "" {
		p.Status = principal.StatusActive
	}
	_, err := s.mdb.Collection(colPrincipals).ReplaceOne(ctx,
		bson.M{"_id": p.ID}, principalToModel(p), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("bastion: save principal: %w", err)
	}
	return nil
}

func (s *Store) ListPrincipals(ctx context.Context, filter *principal.ListFilter) ([]*principal.Principal, error) {
	var models []principalModel
	f := bson.M{}
	if filter != nil {
		if filter.Role != "" {
			f["role"] = string(filter.Role)
		}
		if filter.Status != "" {
			f["status"] = string(filter.Status)
		}
		if filter.Department != "" {
			f["department"] = filter.Department
		}
		if filter.Search != "" {
			re := bson.Regex{Pattern: regexQuote(filter.Search), Options: "i"}
			f["$or"] = bson.A{
				bson.M{"display_name": re},
				bson.M{"email": re},
				bson.M{"_id": re},
			}
		}
	}
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
		return errors.New("bastion/mongo: commit without audit entry")
	}
	return s.write(ctx, c.Principal, c.ExpectedVersion, c.Entry)
}

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	return s.write(ctx, nil, 0, e)
}

// write applies the principal update, entry insert and head advance in one
// transaction. Concurrent writers conflict on the head document; the driver
// retries transient transaction errors itself.
func (s *Store) write(ctx context.Context, p *principal.Principal, expected int64, e *audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	principals := s.mdb.Collection(colPrincipals)

	sess, err := principals.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("bastion: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	var saved *principal.Principal
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		saved = nil
		if p != nil {
			var current principalModel
			if err := principals.FindOne(ctx, bson.M{"_id": p.ID}).Decode(&current); err != nil {
				if isNoDocuments(err) {
					return nil, fmt.Errorf("principal %q: %w", p.ID, principal.ErrNotFound)
				}
				return nil, fmt.Errorf("bastion: read principal: %w", err)
			}
			if current.Version != expected {
				return nil, fmt.Errorf("principal %q at version %d, expected %d: %w",
					p.ID, current.Version, expected, principal.ErrVersionConflict)
			}
		}

		if err := s.appendTx(ctx, e); err != nil {
			return nil, err
		}

		if p != nil {
			next := p.Clone()
			next.Version = expected + 1
			next.UpdatedAt = e.CreatedAt
			res, err := principals.ReplaceOne(ctx,
				bson.M{"_id": p.ID, "version": expected}, principalToModel(next))
			if err != nil {
				return nil, fmt.Errorf("bastion: save principal: %w", err)
			}
			if res.MatchedCount == 0 {
				return nil, fmt.Errorf("principal %q: %w", p.ID, principal.ErrVersionConflict)
			}
			saved = next
		}
		return nil, nil
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

// appendTx seals e against the head document and inserts it. It must run
// inside a session transaction.
func (s *Store) appendTx(ctx context.Context, e *audit.Entry) error {
	heads := s.mdb.Collection(colAuditHead)
	var hm auditHeadModel
	if err := heads.FindOne(ctx, bson.M{"_id": headID}).Decode(&hm); err != nil && !isNoDocuments(err) {
		return fmt.Errorf("bastion: read audit head: %w", err)
	}
	head, err := hm.head()
	if err != nil {
		return fmt.Errorf("bastion: read audit head: %w", err)
	}
	prevSeq := head.Seq
	head = head.Next(e, s.now())

	if _, err := s.mdb.Collection(colAuditEntries).InsertOne(ctx, auditEntryToModel(e)); err != nil {
		return fmt.Errorf("bastion: append audit: %w", err)
	}

	res, err := heads.UpdateOne(ctx,
		bson.M{"_id": headID, "seq": prevSeq},
		bson.M{"$set": bson.M{"seq": head.Seq, "hash": head.Hash.String(), "at": head.At}},
		options.UpdateOne().SetUpsert(prevSeq == 0))
	if err != nil {
		return fmt.Errorf("bastion: advance audit head: %w", err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return store.ErrConcurrentWrite
	}
	return nil
}

// ──────────────────────────────────────────────────
// Audit queries
// ──────────────────────────────────────────────────

func auditFilter(filter *audit.Filter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.ActorID != "" {
		f["actor_id"] = filter.ActorID
	}
	if filter.TargetID != "" {
		f["target_id"] = filter.TargetID
	}
	if filter.Principal != "" {
		f["$or"] = bson.A{
			bson.M{"actor_id": filter.Principal},
			bson.M{"target_id": filter.Principal},
		}
	}
	if filter.Action != "" {
		f["action"] = filter.Action
	}
	if filter.Permission != "" {
		f["permission"] = string(filter.Permission)
	}
	if filter.Outcome != "" {
		f["outcome"] = string(filter.Outcome)
	}
	if filter.After != nil || filter.Before != nil {
		dateFilter := bson.M{}
		if filter.After != nil {
			dateFilter["$gte"] = *filter.After
		}
		if filter.Before != nil {
			dateFilter["$lt"] = *filter.Before
		}
		f["created_at"] = dateFilter
	}
	return f
}

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
			f := auditFilter(filter)
			f["seq"] = bson.M{"$gt": afterSeq}

			var models []auditEntryModel
			err := s.mdb.NewFind(&models).
				Filter(f).
				Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}}).
				Limit(int64(size)).
				Scan(ctx)
			if err != nil {
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
	count, err := s.mdb.NewFind((*auditEntryModel)(nil)).
		Filter(auditFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bastion: count audit: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeAudit(ctx context.Context, before time.Time, e *audit.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	entries := s.mdb.Collection(colAuditEntries)
	sess, err := entries.Database().Client().StartSession()
	if err != nil {
		return 0, fmt.Errorf("bastion: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	var removed int64
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		res, err := entries.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": before}})
		if err != nil {
			return nil, fmt.Errorf("bastion: purge audit: %w", err)
		}
		removed = res.DeletedCount
		e.SetRemoved(removed)
		return nil, s.appendTx(ctx, e)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// regexQuote escapes s for use as a literal inside a MongoDB regex.
func regexQuote(s string) string { return regexp.QuoteMeta(s) }
