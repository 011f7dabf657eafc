package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"

	"project_associa/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPatient(t *testing.T, env *testEnv, phone string) *entities.Patient {
	t.Helper()
	res, err := env.reconciler.CaptureLead(context.Background(), env.assoc, phone, LeadForm{Name: "Paciente"})
	require.NoError(t, err)
	return res.Patient
}

func TestTransitionAppendsAuditAndPublishes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := seedPatient(t, env, "85996201636")

	conv, created, err := env.machine.FindOrCreateOpen(ctx, p, p.Interlocutor())
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, entities.StatusWithAI, conv.Status)

	queued, err := env.machine.Transition(ctx, conv.ID, entities.StatusQueued, nil)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusQueued, queued.Status)
	assert.NotNil(t, queued.QueuedAt)

	msgs, err := env.store.Conversations().ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, entities.SenderSystem, msgs[0].SenderType)
	assert.Contains(t, msgs[0].Content, "com_ia -> fila_humano")
	assert.Contains(t, msgs[0].Content, "sistema")

	assert.Equal(t, []string{entities.EventConversationQueued}, env.publisher.Types())
}

func TestTransitionCommittedEvenWhenPublishFails(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("hub closed")
	ctx := context.Background()
	p := seedPatient(t, env, "85996201636")
	conv, _, err := env.machine.FindOrCreateOpen(ctx, p, p.Interlocutor())
	require.NoError(t, err)

	_, err = env.machine.Transition(ctx, conv.ID, entities.StatusQueued, nil)
	require.NoError(t, err)

	stored, err := env.machine.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusQueued, stored.Status)
}

func TestTransitionRejectsSkippingQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := seedPatient(t, env, "85996201636")
	conv, _, err := env.machine.FindOrCreateOpen(ctx, p, p.Interlocutor())
	require.NoError(t, err)

	attendant := 9
	_, err = env.machine.Transition(ctx, conv.ID, entities.StatusWithHuman, &attendant)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
	_, err = env.machine.Transition(ctx, conv.ID, entities.StatusResolved, &attendant)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	msgs, err := env.store.Conversations().ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestResolvedRejectsEveryTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := seedPatient(t, env, "85996201636")
	conv, _, err := env.machine.FindOrCreateOpen(ctx, p, p.Interlocutor())
	require.NoError(t, err)

	attendant := 3
	_, err = env.machine.Claim(ctx, conv.ID, attendant)
	require.NoError(t, err)
	_, err = env.machine.Close(ctx, conv.ID, attendant)
	require.NoError(t, err)

	for _, to := range []entities.ConversationStatus{entities.StatusWithAI, entities.StatusQueued, entities.StatusWithHuman, entities.StatusResolved} {
		_, err := env.machine.Transition(ctx, conv.ID, to, &attendant)
		assert.ErrorIs(t, err, entities.ErrInvalidTransition, "resolvida -> %s", to)
	}
}

func TestClaimFromAIPassesThroughQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := seedPatient(t, env, "85996201636")
	conv, _, err := env.machine.FindOrCreateOpen(ctx, p, p.Interlocutor())
	require.NoError(t, err)

	attendant := 4
	claimed, err := env.machine.Claim(ctx, conv.ID, attendant)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusWithHuman, claimed.Status)
	require.NotNil(t, claimed.AttendantID)
	assert.Equal(t, attendant, *claimed.AttendantID)

	msgs, err := env.store.Conversations().ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "com_ia -> fila_humano")
	assert.Contains(t, msgs[1].Content, "fila_humano -> com_humano")
	assert.Contains(t, msgs[1].Content, "atendente #4")
	require.NotNil(t, msgs[1].SenderID)
	assert.Equal(t, attendant, *msgs[1].SenderID)

	assert.Equal(t, []string{entities.EventConversationQueued, entities.EventConversationClaimed}, env.publisher.Types())
}

func TestCloseThenNewContactOpensNewConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := seedPatient(t, env, "85996201636")
	conv, _, err := env.machine.FindOrCreateOpen(ctx, p, p.Interlocutor())
	require.NoError(t, err)

	_, err = env.machine.Claim(ctx, conv.ID, 1)
	require.NoError(t, err)
	closed, err := env.machine.Close(ctx, conv.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusResolved, closed.Status)
	assert.NotNil(t, closed.EndedAt)

	next, created, err := env.machine.FindOrCreateOpen(ctx, p, p.Interlocutor())
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, conv.ID, next.ID)
	assert.Equal(t, entities.StatusWithAI, next.Status)

	old, err := env.machine.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusResolved, old.Status)
}

func TestConcurrentClaimsOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := seedPatient(t, env, "85996201636")
	conv, _, err := env.machine.FindOrCreateOpen(ctx, p, p.Interlocutor())
	require.NoError(t, err)
	_, err = env.machine.Transition(ctx, conv.ID, entities.StatusQueued, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(attendant int) {
			defer wg.Done()
			if _, err := env.machine.Transition(ctx, conv.ID, entities.StatusWithHuman, &attendant); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, entities.ErrInvalidTransition)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTransitionUnknownConversation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.machine.Transition(context.Background(), 999, entities.StatusQueued, nil)
	assert.ErrorIs(t, err, entities.ErrConversationNotFound)
}
