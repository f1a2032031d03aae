// Package memory provides an in-memory implementation of the Bastion composite
// store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/store"
)

// Compile-time interface checks.
var (
	_ principal.Store = (*Store)(nil)
	_ audit.Store     = (*Store)(nil)
	_ store.Store     = (*Store)(nil)
)

// Operations passed to a fault hook.
const (
	OpCommit = "commit"
	OpAppend = "append"
	OpPurge  = "purge"
	OpGet    = "get"
)

// FaultFunc is consulted before each write (and GetPrincipal). A non-nil
// return aborts the operation with that error.
type FaultFunc func(op string) error

// Option configures the memory store.
type Option func(*Store)

// WithClock sets the clock used to timestamp audit entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFault installs a fault hook.
func WithFault(fn FaultFunc) Option {
	return func(s *Store) { s.fault = fn }
}

// Store is a thread-safe in-memory store for all Bastion entities.
type Store struct {
	mu sync.RWMutex

	principals map[string]*principal.Principal
	entries    []*audit.Entry // sequence order
	head       audit.Head

	now   func() time.Time
	fault FaultFunc
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		principals: make(map[string]*principal.Principal),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFault replaces the fault hook. Passing nil clears it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

func (s *Store) injected(op string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op)
}

// ──────────────────────────────────────────────────
// Principal Store
// ──────────────────────────────────────────────────

func (s *Store) GetPrincipal(_ context.Context, principalID string) (*principal.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected(OpGet); err != nil {
		return nil, err
	}
	p, ok := s.principals[principalID]
	if !ok {
		return nil, fmt.Errorf("principal %q: %w", principalID, principal.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *Store) SavePrincipal(_ context.Context, p *principal.Principal) error {
	if p.ID == "" {
		return fmt.Errorf("memory: principal has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p.Clone()
	now := s.now().UTC()
	if existing, ok := s.principals[p.ID]; ok && c.CreatedAt.IsZero() {
		c.CreatedAt = existing.CreatedAt
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.Status == "" {
		c.Status = principal.StatusActive
	}
	s.principals[p.ID] = c
	return nil
}

func (s *Store) ListPrincipals(_ context.Context, filter *principal.ListFilter) ([]*principal.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*principal.Principal, 0, len(s.principals))
	for _, p := range s.principals {
		if filter != nil {
			if filter.Role != "" && p.Role != filter.Role {
				continue
			}
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
			if filter.Department != "" && p.Department != filter.Department {
				continue
			}
			if filter.Search != "" && !matchesSearch(p, filter.Search) {
				continue
			}
		}
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	var pag pagOpts
	if filter != nil {
		pag = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, pag), nil
}

func matchesSearch(p *principal.Principal, search string) bool {
	q := strings.ToLower(search)
	return strings.Contains(strings.ToLower(p.DisplayName), q) ||
		strings.Contains(strings.ToLower(p.Email), q) ||
		strings.Contains(strings.ToLower(p.ID), q)
}

// ──────────────────────────────────────────────────
// Commit
// ──────────────────────────────────────────────────

func (s *Store) Commit(_ context.Context, c *store.Change) error {
	if c == nil || c.Entry == nil {
		return fmt.Errorf("memory: commit without audit entry")
	}
	if err := c.Entry.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpCommit); err != nil {
		return err
	}

	if c.Principal != nil {
		current, ok := s.principals[c.Principal.ID]
		if !ok {
			return fmt.Errorf("principal %q: %w", c.Principal.ID, principal.ErrNotFound)
		}
		if current.Version != c.ExpectedVersion {
			return fmt.Errorf("principal %q at version %d, expected %d: %w",
				c.Principal.ID, current.Version, c.ExpectedVersion, principal.ErrVersionConflict)
		}
	}

	s.appendLocked(c.Entry)

	if c.Principal != nil {
		p := c.Principal.Clone()
		p.Version = c.ExpectedVersion + 1
		p.UpdatedAt = c.Entry.CreatedAt
		s.principals[p.ID] = p
		c.Principal.Version = p.Version
		c.Principal.UpdatedAt = p.UpdatedAt
	}
	return nil
}

// ──────────────────────────────────────────────────
// Audit Store
// ──────────────────────────────────────────────────

func (s *Store) AppendAudit(_ context.Context, e *audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpAppend); err != nil {
		return err
	}
	s.appendLocked(e)
	return nil
}

func (s *Store) appendLocked(e *audit.Entry) {
	s.head = s.head.Next(e, s.now())
	s.entries = append(s.entries, e.Clone())
}

func (s *Store) QueryAudit(_ context.Context, filter *audit.Filter) iter.Seq2[*audit.Entry, error] {
	return func(yield func(*audit.Entry, error) bool) {
		s.mu.RLock()
		matched := make([]*audit.Entry, 0)
		for _, e := range s.entries {
			if !filter.Match(e) {
				continue
			}
			matched = append(matched, e.Clone())
			if filter != nil && filter.Limit > 0 && len(matched) == filter.Limit {
				break
			}
		}
		s.mu.RUnlock()

		for _, e := range matched {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (s *Store) CountAudit(_ context.Context, filter *audit.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.entries {
		if filter.Match(e) {
			n++
		}
	}
	return n, nil
}

func (s *Store) PurgeAudit(_ context.Context, before time.Time, e *audit.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpPurge); err != nil {
		return 0, err
	}
	if err := s.injected(OpAppend); err != nil {
		return 0, err
	}
	kept := make([]*audit.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if !entry.CreatedAt.Before(before) {
			kept = append(kept, entry)
		}
	}
	removed := int64(len(s.entries) - len(kept))
	s.entries = kept
	e.SetRemoved(removed)
	s.appendLocked(e)
	return removed, nil
}

// Tamper overwrites a stored entry in place, bypassing the chain. It exists
// so tests can prove verification catches modification.
func (s *Store) Tamper(seq int64, fn func(*audit.Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Seq == seq {
			fn(e)
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

type pagOpts struct{ limit, offset int }

func applyPagination[T any](items []*T, p pagOpts) []*T {
	if p.offset > 0 && p.offset < len(items) {
		items = items[p.offset:]
	} else if p.offset > 0 && p.offset >= len(items) {
		return nil
	}
	if p.limit > 0 && p.limit < len(items) {
		items = items[:p.limit]
	}
	return items
}
