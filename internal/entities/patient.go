package entities

import (
	"strings"
	"time"
)

type PatientStatus string

const (
	PatientLead   PatientStatus = "LEAD"
	PatientMember PatientStatus = "MEMBRO"
)

type SyncStatus string

const (
	SyncStatusSynced         SyncStatus = "synced"
	SyncStatusNotInDirectory SyncStatus = "not_in_directory"
	SyncStatusPending        SyncStatus = "pending"
	SyncStatusDegraded       SyncStatus = "degraded"
)

// Patient is unique per (AssociationID, WhatsApp). WhatsApp holds the canonical phone key.
type Patient struct {
	ID               int                    `json:"id"`
	AssociationID    int                    `json:"association_id"`
	WhatsApp         string                 `json:"whatsapp"`
	Name             string                 `json:"name"`
	CPF              string                 `json:"cpf"`
	Status           PatientStatus          `json:"status"`
	ExternalID       *string                `json:"external_id"`
	ResponsibleName  string                 `json:"responsible_name"`
	ResponsibleCPF   string                 `json:"responsible_cpf"`
	RelationshipType string                 `json:"relationship_type"`
	DirectoryFields  map[string]interface{} `json:"directory_fields,omitempty"`
	Active           bool                   `json:"active"`
	LastSyncAt       *time.Time             `json:"last_sync_at"`
	SyncStatus       SyncStatus             `json:"sync_status"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// HasResponsible reports whether someone else answers for the patient.
func (p *Patient) HasResponsible() bool {
	return strings.TrimSpace(p.ResponsibleName) != "" || strings.TrimSpace(p.RelationshipType) != ""
}

// IsFresh reports whether the last directory sync happened within window.
func (p *Patient) IsFresh(now time.Time, window time.Duration) bool {
	if p.LastSyncAt == nil || window <= 0 {
		return false
	}
	return now.Sub(*p.LastSyncAt) < window
}

// Interlocutor is the person actually texting. It is the responsible party when one is
// recorded, otherwise the patient.
func (p *Patient) Interlocutor() Interlocutor {
	if p.HasResponsible() {
		return Interlocutor{
			Name:          strings.TrimSpace(p.ResponsibleName),
			CPF:           p.ResponsibleCPF,
			Relationship:  strings.TrimSpace(p.RelationshipType),
			IsResponsible: true,
		}
	}
	return Interlocutor{Name: p.Name, CPF: p.CPF}
}

type Interlocutor struct {
	Name          string `json:"name"`
	CPF           string `json:"cpf,omitempty"`
	Relationship  string `json:"relationship,omitempty"`
	IsResponsible bool   `json:"is_responsible"`
}
