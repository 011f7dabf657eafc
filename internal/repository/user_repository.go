package repository

import (
	"context"
	"errors"
	"fmt"

	"project_associa/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, role, association_id, is_active)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		user.Username, user.PasswordHash, user.Role, user.AssociationID, user.IsActive).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("username %q already taken", user.Username)
	}
	return err
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	return r.get(ctx, "username = $1", username)
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (*entities.User, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *UserRepository) get(ctx context.Context, where string, arg interface{}) (*entities.User, error) {
	var user entities.User
	err := r.db.QueryRow(ctx,
		"SELECT id, username, password_hash, role, association_id, is_active, created_at FROM users WHERE "+where,
		arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.AssociationID, &user.IsActive, &user.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
