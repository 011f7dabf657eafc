package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/infrastructure"
	"project_associa/internal/interfaces"
)

type SyncType string

const (
	SyncExisting      SyncType = "existing"
	SyncFromDirectory SyncType = "synced_from_directory"
	SyncDegraded      SyncType = "degraded"
	SyncLeadCreated   SyncType = "lead_created"
)

// LeadForm is the minimal identification a caller may supply for an unknown contact.
type LeadForm struct {
	Name string
	CPF  string
}

func (f *LeadForm) empty() bool {
	return f == nil || (strings.TrimSpace(f.Name) == "" && strings.TrimSpace(f.CPF) == "")
}

type ReconciliationResult struct {
	Patient      *entities.Patient
	Interlocutor entities.Interlocutor
	SyncType     SyncType
	Created      bool
}

// ReconciliationEngine is the only writer of Patient rows.
type ReconciliationEngine struct {
	patients  interfaces.PatientStore
	directory interfaces.Directory
	staleness time.Duration
	logger    *slog.Logger
	metrics   *infrastructure.Metrics
	now       func() time.Time
}

func NewReconciliationEngine(patients interfaces.PatientStore, directory interfaces.Directory, staleness time.Duration, logger *slog.Logger, metrics *infrastructure.Metrics) *ReconciliationEngine {
	return &ReconciliationEngine{
		patients:  patients,
		directory: directory,
		staleness: staleness,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Reconcile resolves rawPhone to a local Patient of association, consulting the
// directory only when the local record is missing or stale.
//
// Errors: ErrInvalidPhone; ErrDirectoryUnavailable (wrapping ErrNeedsLeadCapture) when the
// directory could not be checked and nothing is stored locally; ErrNeedsLeadCapture when
// the contact is unknown and no form was supplied. No row is written on any error.
func (e *ReconciliationEngine) Reconcile(ctx context.Context, association *entities.Association, rawPhone string, form *LeadForm) (*ReconciliationResult, error) {
	phone, err := entities.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	local, err := e.patients.GetByWhatsApp(ctx, association.ID, phone)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	now := e.now()
	if local != nil && local.IsFresh(now, e.staleness) {
		return e.result(local, SyncExisting, false), nil
	}

	variants, _ := entities.PhoneVariants(phone)
	rec, err := e.directory.FindByPhone(ctx, association, variants)
	switch {
	case err == nil:
		return e.syncFromDirectory(ctx, association, phone, local, rec, now)

	case errors.Is(err, entities.ErrDirectoryNotFound):
		return e.notInDirectory(ctx, association, phone, local, form, now)

	case errors.Is(err, entities.ErrDirectoryUnavailable), errors.Is(err, entities.ErrDirectoryUnauthorized):
		if local == nil {
			e.metrics.Reconciled("unavailable")
			e.logger.Warn("directory unavailable and no local record",
				"association", association.Subdomain, "phone", phone, "error", err)
			return nil, fmt.Errorf("%w: %w", entities.ErrDirectoryUnavailable, entities.ErrNeedsLeadCapture)
		}
		e.logger.Warn("directory unavailable, serving local record",
			"association", association.Subdomain, "patient_id", local.ID, "error", err)
		local.SyncStatus = entities.SyncStatusDegraded
		local.ExternalID = nil
		if _, err := e.patients.Upsert(ctx, local); err != nil {
			return nil, fmt.Errorf("mark degraded: %w", err)
		}
		return e.result(local, SyncDegraded, false), nil

	default:
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
}

// CaptureLead stores a LEAD from manually supplied identification without consulting the
// directory. sync_status stays pending so the next Reconcile retries the lookup.
func (e *ReconciliationEngine) CaptureLead(ctx context.Context, association *entities.Association, rawPhone string, form LeadForm) (*ReconciliationResult, error) {
	phone, err := entities.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	p := &entities.Patient{
		AssociationID: association.ID,
		WhatsApp:      phone,
		Name:          strings.TrimSpace(form.Name),
		CPF:           strings.TrimSpace(form.CPF),
		Status:        entities.PatientLead,
		Active:        true,
		SyncStatus:    entities.SyncStatusPending,
	}
	if local, err := e.patients.GetByWhatsApp(ctx, association.ID, phone); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	} else if local != nil {
		fillBlank(local, form)
		local.LastSyncAt = nil
		local.ExternalID = nil
		local.SyncStatus = entities.SyncStatusPending
		p = local
	}
	created, err := e.patients.Upsert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("capture lead: %w", err)
	}
	syncType := SyncExisting
	if created {
		syncType = SyncLeadCreated
	}
	return e.result(p, syncType, created), nil
}

func (e *ReconciliationEngine) syncFromDirectory(ctx context.Context, association *entities.Association, phone string, local *entities.Patient, rec *entities.DirectoryRecord, now time.Time) (*ReconciliationResult, error) {
	p := local
	if p == nil {
		p = &entities.Patient{AssociationID: association.ID, WhatsApp: phone, Active: true}
	}
	mergeDirectoryRecord(p, rec)
	p.LastSyncAt = &now
	p.SyncStatus = entities.SyncStatusSynced

	created, err := e.patients.Upsert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("store directory patient: %w", err)
	}
	e.logger.Info("patient synced from directory",
		"association", association.Subdomain, "patient_id", p.ID, "external_id", rec.ExternalID,
		"variant", rec.MatchedVariant, "responsible", p.HasResponsible())
	return e.result(p, SyncFromDirectory, created), nil
}

func (e *ReconciliationEngine) notInDirectory(ctx context.Context, association *entities.Association, phone string, local *entities.Patient, form *LeadForm, now time.Time) (*ReconciliationResult, error) {
	if local != nil {
		if form != nil {
			fillBlank(local, *form)
		}
		local.LastSyncAt = &now
		local.ExternalID = nil
		local.SyncStatus = entities.SyncStatusNotInDirectory
		if _, err := e.patients.Upsert(ctx, local); err != nil {
			return nil, fmt.Errorf("refresh patient: %w", err)
		}
		return e.result(local, SyncExisting, false), nil
	}

	if form.empty() {
		e.metrics.Reconciled("needs_lead_capture")
		return nil, entities.ErrNeedsLeadCapture
	}

	p := &entities.Patient{
		AssociationID: association.ID,
		WhatsApp:      phone,
		Name:          strings.TrimSpace(form.Name),
		CPF:           strings.TrimSpace(form.CPF),
		Status:        entities.PatientLead,
		Active:        true,
		LastSyncAt:    &now,
		SyncStatus:    entities.SyncStatusNotInDirectory,
	}
	created, err := e.patients.Upsert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	syncType := SyncLeadCreated
	if !created {
		// lost a race with a concurrent reconcile of the same phone
		syncType = SyncExisting
	}
	return e.result(p, syncType, created), nil
}

func (e *ReconciliationEngine) result(p *entities.Patient, syncType SyncType, created bool) *ReconciliationResult {
	e.metrics.Reconciled(string(syncType))
	return &ReconciliationResult{
		Patient:      p,
		Interlocutor: p.Interlocutor(),
		SyncType:     syncType,
		Created:      created,
	}
}

func fillBlank(p *entities.Patient, form LeadForm) {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = strings.TrimSpace(form.Name)
	}
	if strings.TrimSpace(p.CPF) == "" {
		p.CPF = strings.TrimSpace(form.CPF)
	}
}
