package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"project_associa/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PatientRepository struct {
	db *pgxpool.Pool
}

func NewPatientRepository(db *pgxpool.Pool) *PatientRepository {
	return &PatientRepository{db: db}
}

const patientColumns = `id, association_id, whatsapp, name, cpf, status, external_id,
	responsible_name, responsible_cpf, relationship_type, directory_fields, active,
	last_sync_at, sync_status, created_at, updated_at`

func scanPatient(row pgx.Row) (*entities.Patient, error) {
	var p entities.Patient
	var fields []byte
	err := row.Scan(&p.ID, &p.AssociationID, &p.WhatsApp, &p.Name, &p.CPF, &p.Status, &p.ExternalID,
		&p.ResponsibleName, &p.ResponsibleCPF, &p.RelationshipType, &fields, &p.Active,
		&p.LastSyncAt, &p.SyncStatus, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &p.DirectoryFields); err != nil {
			return nil, fmt.Errorf("decode directory_fields of patient %d: %w", p.ID, err)
		}
	}
	return &p, nil
}

func (r *PatientRepository) GetByWhatsApp(ctx context.Context, associationID int, whatsapp string) (*entities.Patient, error) {
	return scanPatient(r.db.QueryRow(ctx,
		"SELECT "+patientColumns+" FROM patients WHERE association_id = $1 AND whatsapp = $2",
		associationID, whatsapp))
}

func (r *PatientRepository) GetByID(ctx context.Context, id int) (*entities.Patient, error) {
	return scanPatient(r.db.QueryRow(ctx, "SELECT "+patientColumns+" FROM patients WHERE id = $1", id))
}

// Upsert relies on UNIQUE(association_id, whatsapp), so concurrent first contacts
// converge on one row. A write without external_id keeps the stored status and
// external_id, and empty cpf or responsible-party values keep the stored ones: a LEAD
// never downgrades a MEMBRO.
func (r *PatientRepository) Upsert(ctx context.Context, p *entities.Patient) (bool, error) {
	var fields []byte
	if len(p.DirectoryFields) > 0 {
		var err error
		if fields, err = json.Marshal(p.DirectoryFields); err != nil {
			return false, fmt.Errorf("encode directory_fields: %w", err)
		}
	}

	var created bool
	var stored []byte
	err := r.db.QueryRow(ctx, `
		INSERT INTO patients (association_id, whatsapp, name, cpf, status, external_id,
			responsible_name, responsible_cpf, relationship_type, directory_fields, active,
			last_sync_at, sync_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (association_id, whatsapp) DO UPDATE SET
			name = EXCLUDED.name,
			cpf = CASE WHEN EXCLUDED.external_id IS NULL
				THEN COALESCE(NULLIF(EXCLUDED.cpf, ''), patients.cpf) ELSE EXCLUDED.cpf END,
			status = CASE WHEN EXCLUDED.external_id IS NULL THEN patients.status ELSE EXCLUDED.status END,
			external_id = COALESCE(EXCLUDED.external_id, patients.external_id),
			responsible_name = CASE WHEN EXCLUDED.external_id IS NULL
				THEN COALESCE(NULLIF(EXCLUDED.responsible_name, ''), patients.responsible_name) ELSE EXCLUDED.responsible_name END,
			responsible_cpf = CASE WHEN EXCLUDED.external_id IS NULL
				THEN COALESCE(NULLIF(EXCLUDED.responsible_cpf, ''), patients.responsible_cpf) ELSE EXCLUDED.responsible_cpf END,
			relationship_type = CASE WHEN EXCLUDED.external_id IS NULL
				THEN COALESCE(NULLIF(EXCLUDED.relationship_type, ''), patients.relationship_type) ELSE EXCLUDED.relationship_type END,
			directory_fields = COALESCE(EXCLUDED.directory_fields, patients.directory_fields),
			active = EXCLUDED.active,
			last_sync_at = EXCLUDED.last_sync_at,
			sync_status = EXCLUDED.sync_status,
			updated_at = NOW()
		RETURNING id, cpf, status, external_id, responsible_name, responsible_cpf, relationship_type,
			directory_fields, created_at, updated_at, (xmax = 0)
	`, p.AssociationID, p.WhatsApp, p.Name, p.CPF, p.Status, p.ExternalID,
		p.ResponsibleName, p.ResponsibleCPF, p.RelationshipType, fields, p.Active,
		p.LastSyncAt, p.SyncStatus).Scan(&p.ID, &p.CPF, &p.Status, &p.ExternalID,
		&p.ResponsibleName, &p.ResponsibleCPF, &p.RelationshipType, &stored, &p.CreatedAt, &p.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert patient %s: %w", p.WhatsApp, err)
	}
	if len(stored) > 0 {
		p.DirectoryFields = nil
		if err := json.Unmarshal(stored, &p.DirectoryFields); err != nil {
			return false, fmt.Errorf("decode directory_fields: %w", err)
		}
	}
	return created, nil
}
