package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"project_associa/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAssociation(t *testing.T, s *MemoryStore, subdomain string) *entities.Association {
	t.Helper()
	a := &entities.Association{Subdomain: subdomain, Name: subdomain, Active: true, GatewaySession: subdomain + "-session"}
	require.NoError(t, s.Associations().Create(context.Background(), a))
	return a
}

func TestMemoryAssociationsUniqueSubdomainAndSession(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedAssociation(t, s, "abrace")

	err := s.Associations().Create(ctx, &entities.Association{Subdomain: "abrace"})
	assert.Error(t, err)
	err = s.Associations().Create(ctx, &entities.Association{Subdomain: "other", GatewaySession: "abrace-session"})
	assert.Error(t, err)

	got, err := s.Associations().GetBySession(ctx, "abrace-session")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abrace", got.Subdomain)

	missing, err := s.Associations().GetBySubdomain(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, s.Associations().SetActive(ctx, "nope", false), entities.ErrTenantNotFound)
}

func TestMemoryPatientsUpsertKeepsMember(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := seedAssociation(t, s, "abrace")

	ext := "42"
	member := &entities.Patient{AssociationID: a.ID, WhatsApp: "85996201636", Name: "Joana", Status: entities.PatientMember,
		ExternalID: &ext, DirectoryFields: map[string]interface{}{"cid": "G40"}, CPF: "12345678901",
		ResponsibleName: "Carla", ResponsibleCPF: "98765432100", RelationshipType: "mãe"}
	created, err := s.Patients().Upsert(ctx, member)
	require.NoError(t, err)
	assert.True(t, created)

	lead := &entities.Patient{AssociationID: a.ID, WhatsApp: "85996201636", Name: "Joana S.", Status: entities.PatientLead}
	created, err = s.Patients().Upsert(ctx, lead)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, member.ID, lead.ID)
	assert.Equal(t, entities.PatientMember, lead.Status)
	require.NotNil(t, lead.ExternalID)
	assert.Equal(t, "42", *lead.ExternalID)
	assert.Equal(t, "G40", lead.DirectoryFields["cid"])
	assert.Equal(t, "Joana S.", lead.Name)
	assert.Equal(t, "12345678901", lead.CPF)
	assert.Equal(t, "Carla", lead.ResponsibleName)
	assert.Equal(t, "98765432100", lead.ResponsibleCPF)
	assert.Equal(t, "mãe", lead.RelationshipType)
	assert.Equal(t, 1, s.CountPatients(a.ID))

	// a directory write replaces them, even with empty values
	resync := &entities.Patient{AssociationID: a.ID, WhatsApp: "85996201636", Name: "Joana", Status: entities.PatientMember, ExternalID: &ext}
	_, err = s.Patients().Upsert(ctx, resync)
	require.NoError(t, err)
	assert.Empty(t, resync.ResponsibleName)
}

func TestMemoryConversationsFindOrCreateOpenIsExclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := seedAssociation(t, s, "abrace")
	p := &entities.Patient{AssociationID: a.ID, WhatsApp: "11999999999", Status: entities.PatientLead}
	_, err := s.Patients().Upsert(ctx, p)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	ids := map[int]bool{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, created, err := s.Conversations().FindOrCreateOpen(ctx, &entities.Conversation{
				AssociationID: a.ID, PatientID: p.ID, Status: entities.StatusWithAI, StartedAt: time.Now(),
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[c.ID] = true
			if created {
				createdCount++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	assert.Len(t, ids, 1)
	n, err := s.Conversations().CountOpen(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryConversationsUpdateStatusCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := seedAssociation(t, s, "abrace")
	c, _, err := s.Conversations().FindOrCreateOpen(ctx, &entities.Conversation{AssociationID: a.ID, PatientID: 7, Status: entities.StatusWithAI})
	require.NoError(t, err)

	next := *c
	next.Status = entities.StatusQueued
	audit := &entities.Message{ConversationID: c.ID, Content: "queued", SenderType: entities.SenderSystem}
	require.NoError(t, s.Conversations().UpdateStatus(ctx, entities.StatusWithAI, &next, audit))
	assert.NotZero(t, audit.ID)

	err = s.Conversations().UpdateStatus(ctx, entities.StatusWithAI, &next, nil)
	assert.ErrorIs(t, err, entities.ErrStaleState)

	missing := next
	missing.ID = 999
	assert.ErrorIs(t, s.Conversations().UpdateStatus(ctx, entities.StatusQueued, &missing, nil), entities.ErrConversationNotFound)

	msgs, err := s.Conversations().ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, entities.SenderSystem, msgs[0].SenderType)
}

func TestMemoryConversationsListMessagesOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c, _, err := s.Conversations().FindOrCreateOpen(ctx, &entities.Conversation{PatientID: 1, Status: entities.StatusWithAI})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, m := range []entities.Message{
		{ConversationID: c.ID, Content: "third", Timestamp: base.Add(2 * time.Second)},
		{ConversationID: c.ID, Content: "first", Timestamp: base},
		{ConversationID: c.ID, Content: "second", Timestamp: base.Add(time.Second)},
	} {
		m := m
		require.NoError(t, s.Conversations().AppendMessage(ctx, &m))
	}

	msgs, err := s.Conversations().ListMessages(ctx, c.ID)
	require.NoError(t, err)
	var got []string
	for _, m := range msgs {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)

	err = s.Conversations().AppendMessage(ctx, &entities.Message{ConversationID: 12345, Content: "x"})
	assert.ErrorIs(t, err, entities.ErrConversationNotFound)
}

func TestMemoryConfigsAndUsers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Configs().SetConfig(ctx, 1, entities.ConfigWelcomeMessage, "Olá"))
	v, err := s.Configs().GetConfig(ctx, 1, entities.ConfigWelcomeMessage)
	require.NoError(t, err)
	assert.Equal(t, "Olá", v)
	v, err = s.Configs().GetConfig(ctx, 2, entities.ConfigWelcomeMessage)
	require.NoError(t, err)
	assert.Empty(t, v)

	u := &entities.User{Username: "ana", Role: entities.RoleAttendant}
	require.NoError(t, s.Users().Create(ctx, u))
	assert.Error(t, s.Users().Create(ctx, &entities.User{Username: "ana"}))
	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", got.Username)
}
