package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConfigRepository struct {
	db *pgxpool.Pool
}

func NewConfigRepository(db *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// GetConfig returns a config value by key, "" when unset.
func (r *ConfigRepository) GetConfig(ctx context.Context, associationID int, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, "SELECT value FROM bot_config WHERE association_id = $1 AND key = $2",
		associationID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil // Not found is not strictly an error
		}
		return "", err
	}
	return value, nil
}

func (r *ConfigRepository) SetConfig(ctx context.Context, associationID int, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bot_config (association_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (association_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, associationID, key, value)
	return err
}

func (r *ConfigRepository) GetAllConfigs(ctx context.Context, associationID int) (map[string]string, error) {
	rows, err := r.db.Query(ctx, "SELECT key, value FROM bot_config WHERE association_id = $1", associationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		configs[k] = v
	}
	return configs, rows.Err()
}
