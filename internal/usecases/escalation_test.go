package usecases

import (
	"context"
	"testing"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordPolicy(t *testing.T) {
	p := NewKeywordPolicy([]string{"finalizar", "confirmar", "Atendente", "humano", " "})

	tests := []struct {
		text string
		want bool
	}{
		{"quero falar com um atendente", true},
		{"ATENDÊNTE!!", true},
		{"Posso finalizar o pedido?", true},
		{"confirmar.", true},
		{"humanos", false},
		{"desumano", false},
		{"bom dia", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldEscalate(tt.text))
		})
	}
}

func TestRuleResponderAddressesInterlocutor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := NewRuleResponder(env.store.Configs(), discardLogger())

	patient := &entities.Patient{Name: "Joana Guerra", ResponsibleName: "Carolina Guerra", RelationshipType: "mae"}
	rc := interfaces.ReplyContext{
		Association:  env.assoc,
		Patient:      patient,
		Interlocutor: patient.Interlocutor(),
		Text:         "Olá!",
	}

	reply, err := r.Reply(ctx, rc)
	require.NoError(t, err)
	assert.Contains(t, reply, "Olá, Carolina!")
	assert.Contains(t, reply, "responsável por Joana Guerra")
	assert.Contains(t, reply, "Abrace")

	require.NoError(t, env.store.Configs().SetConfig(ctx, env.assoc.ID, entities.ConfigWelcomeMessage, "Seja bem-vinda."))
	reply, err = r.Reply(ctx, rc)
	require.NoError(t, err)
	assert.Contains(t, reply, "Seja bem-vinda.")

	rc.Text = "menu"
	reply, err = r.Reply(ctx, rc)
	require.NoError(t, err)
	assert.Contains(t, reply, "atendente")

	rc.Text = "qual o horário de vocês?"
	reply, err = r.Reply(ctx, rc)
	require.NoError(t, err)
	assert.Contains(t, reply, "Carolina")
	assert.NotContains(t, reply, "Joana")
}
