package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"project_associa/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directoryAssociation(baseURL string) *entities.Association {
	return &entities.Association{
		Subdomain: "abrace",
		Directory: entities.DirectoryConfig{
			BaseURL: baseURL, Username: "api", Password: "secret",
			PostType: "pacientes", PhoneField: "telefone",
		},
	}
}

func TestDirectoryFindsSecondVariant(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/wp-json/wp/v2/pacientes", r.URL.Path)
		assert.Equal(t, "standard", r.URL.Query().Get("acf_format"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("telefone") != "5585996201636" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{
			"id": 321,
			"title": {"rendered": "Joana Guerra"},
			"status": "publish",
			"acf": {"nome_responsavel": "Carolina Guerra", "cpf_responsavel": "123.456.789-00", "status": "ativo"}
		}]`))
	}))
	defer srv.Close()

	d := NewWordPressDirectory(2*time.Second, nil, nil)
	rec, err := d.FindByPhone(context.Background(), directoryAssociation(srv.URL), []string{"85996201636", "5585996201636", "+5585996201636"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "321", rec.ExternalID)
	assert.Equal(t, "Joana Guerra", rec.Title)
	assert.Equal(t, "5585996201636", rec.MatchedVariant)
	assert.Equal(t, "Carolina Guerra", rec.Fields["nome_responsavel"])
	assert.Equal(t, "ativo", rec.Fields["status"], "acf fields override top-level keys")
}

func TestDirectorySingleObjectAndAmbiguousResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("telefone") {
		case "1":
			_, _ = w.Write([]byte(`{"id": 1, "title": "Only"}`))
		default:
			_, _ = w.Write([]byte(`[{"id": 2, "title": {"rendered": "First"}}, {"id": 3, "title": {"rendered": "Second"}}]`))
		}
	}))
	defer srv.Close()

	d := NewWordPressDirectory(time.Second, nil, nil)

	rec, err := d.FindByPhone(context.Background(), directoryAssociation(srv.URL), []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, "Only", rec.Title)

	rec, err = d.FindByPhone(context.Background(), directoryAssociation(srv.URL), []string{"2"})
	require.NoError(t, err)
	assert.Equal(t, "2", rec.ExternalID)
}

func TestDirectoryErrorsAreNormalized(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
		notWant error
	}{
		{
			name:    "empty everywhere is not found",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`[]`)) },
			want:    entities.ErrDirectoryNotFound,
			notWant: entities.ErrDirectoryUnavailable,
		},
		{
			name: "missing route is unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"code":"rest_no_route","message":"No route was found matching the URL and request method."}`))
			},
			want:    entities.ErrDirectoryUnavailable,
			notWant: entities.ErrDirectoryNotFound,
		},
		{
			name:    "401 is unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			want:    entities.ErrDirectoryUnauthorized,
		},
		{
			name:    "500 is unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			want:    entities.ErrDirectoryUnavailable,
			notWant: entities.ErrDirectoryNotFound,
		},
		{
			name:    "garbage is unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html>`)) },
			want:    entities.ErrDirectoryUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			d := NewWordPressDirectory(time.Second, nil, nil)
			rec, err := d.FindByPhone(context.Background(), directoryAssociation(srv.URL), []string{"85996201636", "5585996201636"})
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, tt.want)
			if tt.notWant != nil {
				assert.False(t, errors.Is(err, tt.notWant))
			}
		})
	}
}

func TestDirectoryTimeoutIsUnavailable(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	d := NewWordPressDirectory(50*time.Millisecond, nil, nil)
	_, err := d.FindByPhone(context.Background(), directoryAssociation(srv.URL), []string{"85988776655"})
	assert.ErrorIs(t, err, entities.ErrDirectoryUnavailable)
}

func TestDirectoryNotConfigured(t *testing.T) {
	d := NewWordPressDirectory(time.Second, nil, nil)
	_, err := d.FindByPhone(context.Background(), &entities.Association{}, []string{"85996201636"})
	assert.ErrorIs(t, err, entities.ErrDirectoryNotFound)
}
