package sqlite

import (
	"encoding/json"
	"fmt"
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
	ID              string `grove:"id,pk"`
	DisplayName     string `grove:"display_name,notnull"`
	Email           string `grove:"email,notnull"`
	Role            string `grove:"role,notnull"`
	Status          string `grove:"status,notnull"`
	Department      string `grove:"department,notnull"`
	Metadata        string `grove:"metadata"` // JSON text
	Version         int64  `grove:"version,notnull"`
	CreatedAtMs     int64  `grove:"created_at_ms,notnull"`
	UpdatedAtMs     int64  `grove:"updated_at_ms,notnull"`
}

func principalToModel(p *principal.Principal) (*principalModel, error) {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal principal metadata: %w", err)
	}
	return &principalModel{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Role:        string(p.Role),
		Status:      string(p.Status),
		Department:  p.Department,
		Metadata:    string(metadata),
		Version:     p.Version,
		CreatedAtMs: p.CreatedAt.UnixMilli(),
		UpdatedAtMs: p.UpdatedAt.UnixMilli(),
	}, nil
}

func principalFromModel(m *principalModel) (*principal.Principal, error) {
	var metadata map[string]any
	if m.Metadata != "" && m.Metadata != "null" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal principal metadata: %w", err)
		}
	}
	return &principal.Principal{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Role:        role.Role(m.Role),
		Status:      principal.Status(m.Status),
		Department:  m.Department,
		Metadata:    metadata,
		Version:     m.Version,
		CreatedAt:   time.UnixMilli(m.CreatedAtMs).UTC(),
		UpdatedAt:   time.UnixMilli(m.UpdatedAtMs).UTC(),
	}, nil
}

// ──────────────────────────────────────────────────
// Audit entry model
// ──────────────────────────────────────────────────

type auditEntryModel struct {
	grove.BaseModel `grove:"table:bastion_audit_entries"`
	ID              string `grove:"id,pk"`
	Seq             int64  `grove:"seq,notnull"`
	ActorID         string `grove:"actor_id,notnull"`
	TargetID        string `grove:"target_id,notnull"`
	Action          string `grove:"action,notnull"`
	Permission      string `grove:"permission,notnull"`
	Outcome         string `grove:"outcome,notnull"`
	Reason          string `grove:"reason,notnull"`
	OldRole         string `grove:"old_role,notnull"`
	NewRole         string `grove:"new_role,notnull"`
	OldStatus       string `grove:"old_status,notnull"`
	NewStatus       string `grove:"new_status,notnull"`
	Source          string `grove:"source,notnull"`
	Metadata        string `grove:"metadata"` // JSON text
	CreatedAtMs     int64  `grove:"created_at_ms,notnull"`
	PrevHash        string `grove:"prev_hash,notnull"`
	Hash            string `grove:"hash,notnull"`
}

func auditEntryToModel(e *audit.Entry) (*auditEntryModel, error) {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal audit metadata: %w", err)
	}
	return &auditEntryModel{
		ID:          e.ID.String(),
		Seq:         e.Seq,
		ActorID:     e.ActorID,
		TargetID:    e.TargetID,
		Action:      e.Action,
		Permission:  string(e.Permission),
		Outcome:     string(e.Outcome),
		Reason:      e.Reason,
		OldRole:     string(e.OldRole),
		NewRole:     string(e.NewRole),
		OldStatus:   string(e.OldStatus),
		NewStatus:   string(e.NewStatus),
		Source:      e.Source,
		Metadata:    string(metadata),
		CreatedAtMs: e.CreatedAt.UnixMilli(),
		PrevHash:    e.PrevHash.String(),
		Hash:        e.Hash.String(),
	}, nil
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
	var metadata map[string]string
	if m.Metadata != "" && m.Metadata != "null" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
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
		Metadata:   metadata,
		CreatedAt:  time.UnixMilli(m.CreatedAtMs).UTC(),
		PrevHash:   prev,
		Hash:       hash,
	}, nil
}

// ──────────────────────────────────────────────────
// Chain head model
// ──────────────────────────────────────────────────

type auditHeadModel struct {
	grove.BaseModel `grove:"table:bastion_audit_head"`
	ID              int64  `grove:"id,pk"`
	Seq             int64  `grove:"seq,notnull"`
	Hash            string `grove:"hash,notnull"`
	AtMs            int64  `grove:"at_ms,notnull"`
}

func (m *auditHeadModel) head() (audit.Head, error) {
	hash, err := audit.ParseHash(m.Hash)
	if err != nil {
		return audit.Head{}, err
	}
	h := audit.Head{Seq: m.Seq, Hash: hash}
	if m.AtMs > 0 {
		h.At = time.UnixMilli(m.AtMs).UTC()
	}
	return h, nil
}
