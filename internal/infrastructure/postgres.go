package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	// Auto-migrate schema
	if err := client.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

// schema is applied in order; every statement is idempotent.
var schema = []struct {
	name string
	sql  string
}{
	{"associations", `
		CREATE TABLE IF NOT EXISTS associations (
			id SERIAL PRIMARY KEY,
			subdomain VARCHAR(63) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			gateway_session VARCHAR(100) UNIQUE,
			directory_base_url TEXT NOT NULL DEFAULT '',
			directory_username TEXT NOT NULL DEFAULT '',
			directory_password TEXT NOT NULL DEFAULT '',
			directory_post_type VARCHAR(100) NOT NULL DEFAULT '',
			directory_phone_field VARCHAR(100) NOT NULL DEFAULT '',
			primary_color VARCHAR(20) NOT NULL DEFAULT '',
			logo_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`},
	{"patients", `
		CREATE TABLE IF NOT EXISTS patients (
			id SERIAL PRIMARY KEY,
			association_id INT NOT NULL REFERENCES associations(id),
			whatsapp VARCHAR(20) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			cpf VARCHAR(20) NOT NULL DEFAULT '',
			status VARCHAR(10) NOT NULL DEFAULT 'LEAD',
			external_id VARCHAR(100),
			responsible_name VARCHAR(255) NOT NULL DEFAULT '',
			responsible_cpf VARCHAR(20) NOT NULL DEFAULT '',
			relationship_type VARCHAR(50) NOT NULL DEFAULT '',
			directory_fields JSONB,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			last_sync_at TIMESTAMPTZ,
			sync_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (association_id, whatsapp)
		);`},
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'attendant',
			association_id INT REFERENCES associations(id),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`},
	{"conversations", `
		CREATE TABLE IF NOT EXISTS conversations (
			id SERIAL PRIMARY KEY,
			association_id INT NOT NULL REFERENCES associations(id),
			patient_id INT NOT NULL REFERENCES patients(id),
			status VARCHAR(20) NOT NULL DEFAULT 'com_ia',
			attendant_id INT REFERENCES users(id),
			interlocutor_name VARCHAR(255) NOT NULL DEFAULT '',
			interlocutor_relationship VARCHAR(50) NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			queued_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ
		);`},
	// at most one non-terminal conversation per patient
	{"conversations_one_open", `
		CREATE UNIQUE INDEX IF NOT EXISTS conversations_one_open_per_patient
			ON conversations (patient_id) WHERE status <> 'resolvida';`},
	{"conversations_status", `
		CREATE INDEX IF NOT EXISTS conversations_association_status
			ON conversations (association_id, status);`},
	{"messages", `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id INT NOT NULL REFERENCES conversations(id),
			content TEXT NOT NULL,
			sender_type VARCHAR(20) NOT NULL,
			sender_id INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`},
	{"messages_order", `
		CREATE INDEX IF NOT EXISTS messages_conversation_order
			ON messages (conversation_id, created_at, id);`},
	{"bot_config", `
		CREATE TABLE IF NOT EXISTS bot_config (
			association_id INT NOT NULL REFERENCES associations(id),
			key VARCHAR(50) NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (association_id, key)
		);`},
}

func (p *PostgresClient) Migrate(ctx context.Context) error {
	for _, step := range schema {
		if _, err := p.Pool.Exec(ctx, step.sql); err != nil {
			return fmt.Errorf("create %s: %w", step.name, err)
		}
	}

	var count int
	if err := p.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		// the admin account is ensured by AuthUsecase.EnsureAdmin at startup
		slog.Info("database initialized, users table empty")
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
