package postgres

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
	ID              string         `grove:"id,pk"`
	DisplayName     string         `grove:"display_name,notnull"`
	Email           string         `grove:"email,notnull"`
	Role            string         `grove:"role,notnull"`
	Status          string         `grove:"status,notnull"`
	Department      string         `grove:"department,notnull"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	Version         int64          `grove:"version,notnull"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
	UpdatedAt       time.Time      `grove:"updated_at,notnull"`
}

func principalToModel(p *principal.Principal) *principalModel {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &principalModel{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Role:        string(p.Role),
		Status:      string(p.Status),
		Department:  p.Department,
		Metadata:    metadata,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func principalFromModel(m *principalModel) *principal.Principal {
	p := &principal.Principal{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Role:        role.Role(m.Role),
		Status:      principal.Status(m.Status),
		Department:  m.Department,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
	if len(m.Metadata) > 0 {
		p.Metadata = m.Metadata
	}
	return p
}

// ──────────────────────────────────────────────────
// Audit entry model
// ──────────────────────────────────────────────────

type auditEntryModel struct {
	grove.BaseModel `grove:"table:bastion_audit_entries"`
	ID              string            `grove:"id,pk"`
	Seq             int64             `grove:"seq,notnull"`
	ActorID         string            `grove:"actor_id,notnull"`
	TargetID        string            `grove:"target_id,notnull"`
	Action          string            `grove:"action,notnull"`
	Permission      string            `grove:"permission,notnull"`
	Outcome         string            `grove:"outcome,notnull"`
	Reason          string            `grove:"reason,notnull"`
	OldRole         string            `grove:"old_role,notnull"`
	NewRole         string            `grove:"new_role,notnull"`
	OldStatus       string            `grove:"old_status,notnull"`
	NewStatus       string            `grove:"new_status,notnull"`
	Source          string            `grove:"source,notnull"`
	Metadata        map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time         `grove:"created_at,notnull"`
	PrevHash        string            `grove:"prev_hash,notnull"`
	Hash            string            `grove:"hash,notnull"`
}

func auditEntryToModel(e *audit.Entry) *auditEntryModel {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
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
		Metadata:   metadata,
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
	e := &audit.Entry{
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
		CreatedAt:  m.CreatedAt.UTC(),
		PrevHash:   prev,
		Hash:       hash,
	}
	if len(m.Metadata) > 0 {
		e.Metadata = m.Metadata
	}
	return e, nil
}

// ──────────────────────────────────────────────────
// Chain head model
// ──────────────────────────────────────────────────

type auditHeadModel struct {
	grove.BaseModel `grove:"table:bastion_audit_head"`
	ID              int64      `grove:"id,pk"`
	Seq             int64      `grove:"seq,notnull"`
	Hash            string     `grove:"hash,notnull"`
	At              *time.Time `grove:"at"`
}

func (m *auditHeadModel) head() (audit.Head, error) {
	hash, err := audit.ParseHash(m.Hash)
	if err != nil {
		return audit.Head{}, err
	}
	h := audit.Head{Seq: m.Seq, Hash: hash}
	if m.At != nil {
		h.At = m.At.UTC()
	}
	return h, nil
}

func headToModel(h audit.Head) *auditHeadModel {
	at := h.At
	return &auditHeadModel{ID: 1, Seq: h.Seq, Hash: h.Hash.String(), At: &at}
}
