package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupPostgres connects to TEST_DATABASE_URL and migrates it. Tests are skipped
// when the variable is unset or the database is unreachable.
func setupPostgres(t *testing.T) *infrastructure.PostgresClient {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := infrastructure.NewPostgresClient(ctx, url)
	if err != nil {
		t.Skipf("Skipping test: could not connect to test database: %v", err)
	}
	t.Cleanup(client.Close)
	require.NoError(t, client.Migrate(ctx))
	return client
}

func TestPostgresOneOpenConversationPerPatient(t *testing.T) {
	client := setupPostgres(t)
	ctx := context.Background()

	associations := NewAssociationRepository(client.Pool)
	patients := NewPatientRepository(client.Pool)
	conversations := NewConversationRepository(client.Pool)

	slug := fmt.Sprintf("test-%d", time.Now().UnixNano())
	a := &entities.Association{Subdomain: slug, Name: slug, Active: true}
	require.NoError(t, associations.Create(ctx, a))

	p := &entities.Patient{AssociationID: a.ID, WhatsApp: "11999999999", Status: entities.PatientLead,
		Active: true, SyncStatus: entities.SyncStatusPending}
	created, err := patients.Upsert(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)

	again := *p
	again.ID = 0
	created, err = patients.Upsert(ctx, &again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)

	var wg sync.WaitGroup
	ids := make([]int, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := conversations.FindOrCreateOpen(ctx, &entities.Conversation{
				AssociationID: a.ID, PatientID: p.ID, Status: entities.StatusWithAI, StartedAt: time.Now(),
			})
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	n, err := conversations.CountOpen(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresUpdateStatusAuditAndStaleState(t *testing.T) {
	client := setupPostgres(t)
	ctx := context.Background()

	associations := NewAssociationRepository(client.Pool)
	patients := NewPatientRepository(client.Pool)
	conversations := NewConversationRepository(client.Pool)

	slug := fmt.Sprintf("audit-%d", time.Now().UnixNano())
	a := &entities.Association{Subdomain: slug, Name: slug, Active: true}
	require.NoError(t, associations.Create(ctx, a))
	p := &entities.Patient{AssociationID: a.ID, WhatsApp: "85996201636", Status: entities.PatientLead, SyncStatus: entities.SyncStatusPending}
	_, err := patients.Upsert(ctx, p)
	require.NoError(t, err)

	c, _, err := conversations.FindOrCreateOpen(ctx, &entities.Conversation{
		AssociationID: a.ID, PatientID: p.ID, Status: entities.StatusWithAI, StartedAt: time.Now(),
	})
	require.NoError(t, err)

	now := time.Now()
	next := *c
	next.Status = entities.StatusQueued
	next.QueuedAt = &now
	audit := &entities.Message{ConversationID: c.ID, Content: "com_ia -> fila_humano", SenderType: entities.SenderSystem}
	require.NoError(t, conversations.UpdateStatus(ctx, entities.StatusWithAI, &next, audit))

	assert.ErrorIs(t, conversations.UpdateStatus(ctx, entities.StatusWithAI, &next, nil), entities.ErrStaleState)

	msgs, err := conversations.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, entities.SenderSystem, msgs[0].SenderType)
}

func TestPostgresLeadUpsertKeepsMemberResponsibleParty(t *testing.T) {
	client := setupPostgres(t)
	ctx := context.Background()

	associations := NewAssociationRepository(client.Pool)
	patients := NewPatientRepository(client.Pool)

	slug := fmt.Sprintf("test-%d", time.Now().UnixNano())
	a := &entities.Association{Subdomain: slug, Name: slug, Active: true}
	require.NoError(t, associations.Create(ctx, a))

	ext := "77"
	member := &entities.Patient{AssociationID: a.ID, WhatsApp: "85996201636", Name: "Joana", CPF: "12345678901",
		Status: entities.PatientMember, ExternalID: &ext, ResponsibleName: "Carla", ResponsibleCPF: "98765432100",
		RelationshipType: "mãe", Active: true, SyncStatus: entities.SyncStatusSynced}
	_, err := patients.Upsert(ctx, member)
	require.NoError(t, err)

	lead := &entities.Patient{AssociationID: a.ID, WhatsApp: "85996201636", Name: "Joana S.",
		Status: entities.PatientLead, Active: true, SyncStatus: entities.SyncStatusPending}
	created, err := patients.Upsert(ctx, lead)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, entities.PatientMember, lead.Status)
	assert.Equal(t, "12345678901", lead.CPF)
	assert.Equal(t, "Carla", lead.ResponsibleName)
	assert.Equal(t, "98765432100", lead.ResponsibleCPF)
	assert.Equal(t, "mãe", lead.RelationshipType)

	stored, err := patients.GetByID(ctx, member.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Carla", stored.ResponsibleName)
	assert.Equal(t, "Joana S.", stored.Name)
}
