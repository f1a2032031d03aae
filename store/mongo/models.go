package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/principal"
	"github.com/xraph/bastion/role"
)

// ──────────────────────────────────────────────────
// Principal model
// ──────────────────────────────────────────────────

type principalModel struct {
	grove.BaseModel `grove:"table:bastion_principals"`
	ID              string         `grove:"id,pk"        bson:"_id"`
	DisplayName     string         `grove:"display_name" bson:"display_name"`
	Email           string         `grove:"email"        bson:"email"`
	Role            string         `grove:"role"         bson:"role"`
	Status          string         `grove:"status"       bson:"status"`
	Department      string         `grove:"department"   bson:"department"`
	Metadata        map[string]any `grove:"metadata"     bson:"metadata,omitempty"`
	Version         int64          `grove:"version"      bson:"version"`
	CreatedAt       time.Time      `grove:"created_at"   bson:"created_at"`
	UpdatedAt       time.Time      `grove:"updated_at"   bson:"updated_at"`
}

func principalToModel(p *principal.Principal) *principalModel {
	return &principalModel{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Role:        string(p.Role),
		Status:      string(p.Status),
		Department:  p.Department,
		Metadata:    p.Metadata,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func principalFromModel(m *principalModel) *principal.Principal {
	return &principal.Principal{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Role:        role.Role(m.Role),
		Status:      principal.Status(m.Status),
		Department:  m.Department,
		Metadata:    m.Metadata,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

// ──────────────────────────────────────────────────
// Audit entry model
// ──────────────────────────────────────────────────

type auditEntryModel struct {
	grove.BaseModel `grove:"table:bastion_audit_entries"`
	ID              string            `grove:"id,pk"      bson:"_id"`
	Seq             int64             `grove:"seq"        bson:"seq"`
	ActorID         string            `grove:"actor_id"   bson:"actor_id"`
	TargetID        string            `grove:"target_id"  bson:"target_id"`
	Action          string            `grove:"action"     bson:"action"`
	Permission      string            `grove:"permission" bson:"permission"`
	Outcome         string            `grove:"outcome"    bson:"outcome"`
	Reason          string            `grove:"reason"     bson:"reason"`
	OldRole         string            `grove:"old_role"   bson:"old_role"`
	NewRole         string            `grove:"new_role"   bson:"new_role"`
	OldStatus       string            `grove:"old_status" bson:"old_status"`
	NewStatus       string            `grove:"new_status" bson:"new_status"`
	Source          string            `grove:"source"     bson:"source"`
	Metadata        map[string]string `grove:"metadata"   bson:"metadata,omitempty"`
	CreatedAt       time.Time         `grove:"created_at" bson:"created_at"`
	PrevHash        string            `grove:"prev_hash"  bson:"prev_hash"`
	Hash            string            `grove:"hash"       bson:"hash"`
}

func auditEntryToModel(e *audit.Entry) *auditEntryModel {
	return &auditEntryModel{
		ID:         e.ID.String(),
		Seq:        e.Seq,
		ActorID:    e.ActorID,
		TargetID:   e.TargetID,
		Action:     e.Action,
		Permission: string(e.Permission),
		Outcome:    string(e.Outcome),
		Reason:     e.Reason,
		OldRole:    string(e.OldRole),
		NewRole:    string(e.NewRole),
		OldStatus:  string(e.OldStatus),
		NewStatus:  string(e.NewStatus),
		Source:     e.Source,
		Metadata:   e.Metadata,
		CreatedAt:  e.CreatedAt,
		PrevHash:   e.PrevHash.String(),
		Hash:       e.Hash.String(),
	}
}

func auditEntryFromModel(m *auditEntryModel) (*audit.Entry, error) {
	eid, err := id.ParseAuditEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	prev, err := audit.ParseHash(m.PrevHash)
	if err != nil {
		return nil, err
	}
	hash, err := audit.ParseHash(m.Hash)
	if err != nil {
		return nil, err
	}
	return &audit.Entry{
		ID:         eid,
		Seq:        m.Seq,
		ActorID:    m.ActorID,
		TargetID:   m.TargetID,
		Action:     m.Action,
		Permission: permission.Permission(m.Permission),
		Outcome:    audit.Outcome(m.Outcome),
		Reason:     m.Reason,
		OldRole:    role.Role(m.OldRole),
		NewRole:    role.Role(m.NewRole),
		OldStatus:  principal.Status(m.OldStatus),
		NewStatus:  principal.Status(m.NewStatus),
		Source:     m.Source,
		Metadata:   m.Metadata,
		CreatedAt:  m.CreatedAt.UTC(),
		PrevHash:   prev,
		Hash:       hash,
	}, nil
}

// ──────────────────────────────────────────────────
// Chain head document
// ──────────────────────────────────────────────────

type auditHeadModel struct {
	ID   string    `bson:"_id"`
	Seq  int64     `bson:"seq"`
	Hash string    `bson:"hash"`
	At   time.Time `bson:"at"`
}

func (m *auditHeadModel) head() (audit.Head, error) {
	hash, err := audit.ParseHash(m.Hash)
	if err != nil {
		return audit.Head{}, err
	}
	h := audit.Head{Seq: m.Seq, Hash: hash}
	if !m.At.IsZero() {
		h.At = m.At.UTC()
	}
	return h, nil
}
