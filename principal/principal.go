// Package principal defines the Principal entity and the Principal
// Directory contract Bastion consumes.
//
// Principals are provisioned by an external identity process. Their role
// and status change only through the engine's administrative operations,
// which commit with an optimistic version check.
package principal

import (
	"errors"
	"time"

	"github.com/xraph/bastion/role"
)

var (
	// ErrNotFound is returned when a principal does not exist.
	ErrNotFound = errors.New("bastion: principal not found")

	// ErrVersionConflict is returned when a principal was changed since it
	// was read.
	ErrVersionConflict = errors.New("bastion: principal version conflict")
)

// Status is the lifecycle state of a principal.
type Status string

const (
	// StatusActive principals are authorized according to their role.
	StatusActive Status = "active"

	// StatusSuspended principals are denied every permission.
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s == StatusActive || s == StatusSuspended }

// Principal is an authenticated actor with exactly one role.
type Principal struct {
	ID          string         `json:"id" db:"id"`
	DisplayName string         `json:"display_name" db:"display_name"`
	Email       string         `json:"email,omitempty" db:"email"`
	Role        role.Role      `json:"role" db:"role"`
	Status      Status         `json:"status" db:"status"`
	Department  string         `json:"department,omitempty" db:"department"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	Version     int64          `json:"version" db:"version"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Active reports whether the principal is active.
func (p *Principal) Active() bool { return p.Status == StatusActive }

// Clone returns a deep copy of p.
func (p *Principal) Clone() *Principal {
	c := *p
	if p.Metadata != nil {
		c.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ListFilter contains filters for listing principals.
type ListFilter struct {
	Role       role.Role `json:"role,omitempty"`
	Status     Status    `json:"status,omitempty"`
	Department string    `json:"department,omitempty"`
	Search     string    `json:"search,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}
