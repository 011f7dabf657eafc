package repository

import (
	"context"
	"errors"
	"fmt"

	"project_associa/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssociationRepository stores tenants. Tenancy is row level: every other table
// carries association_id.
type AssociationRepository struct {
	db *pgxpool.Pool
}

func NewAssociationRepository(db *pgxpool.Pool) *AssociationRepository {
	return &AssociationRepository{db: db}
}

const associationColumns = `id, subdomain, name, active, COALESCE(gateway_session, ''),
	directory_base_url, directory_username, directory_password, directory_post_type,
	directory_phone_field, primary_color, logo_url, created_at`

func scanAssociation(row pgx.Row) (*entities.Association, error) {
	var a entities.Association
	err := row.Scan(&a.ID, &a.Subdomain, &a.Name, &a.Active, &a.GatewaySession,
		&a.Directory.BaseURL, &a.Directory.Username, &a.Directory.Password, &a.Directory.PostType,
		&a.Directory.PhoneField, &a.PrimaryColor, &a.LogoURL, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssociationRepository) GetBySubdomain(ctx context.Context, subdomain string) (*entities.Association, error) {
	return scanAssociation(r.db.QueryRow(ctx,
		"SELECT "+associationColumns+" FROM associations WHERE subdomain = $1", subdomain))
}

func (r *AssociationRepository) GetBySession(ctx context.Context, session string) (*entities.Association, error) {
	if session == "" {
		return nil, nil
	}
	return scanAssociation(r.db.QueryRow(ctx,
		"SELECT "+associationColumns+" FROM associations WHERE gateway_session = $1", session))
}

func (r *AssociationRepository) GetByID(ctx context.Context, id int) (*entities.Association, error) {
	return scanAssociation(r.db.QueryRow(ctx,
		"SELECT "+associationColumns+" FROM associations WHERE id = $1", id))
}

func (r *AssociationRepository) List(ctx context.Context) ([]entities.Association, error) {
	rows, err := r.db.Query(ctx, "SELECT "+associationColumns+" FROM associations ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entities.Association{}
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AssociationRepository) Create(ctx context.Context, a *entities.Association) error {
	var session interface{}
	if a.GatewaySession != "" {
		session = a.GatewaySession
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO associations (subdomain, name, active, gateway_session,
			directory_base_url, directory_username, directory_password, directory_post_type,
			directory_phone_field, primary_color, logo_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`, a.Subdomain, a.Name, a.Active, session,
		a.Directory.BaseURL, a.Directory.Username, a.Directory.Password, a.Directory.PostType,
		a.Directory.PhoneField, a.PrimaryColor, a.LogoURL).Scan(&a.ID, &a.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("association %q or its gateway session already exists", a.Subdomain)
	}
	return err
}

func (r *AssociationRepository) SetActive(ctx context.Context, subdomain string, active bool) error {
	tag, err := r.db.Exec(ctx, "UPDATE associations SET active = $1 WHERE subdomain = $2", active, subdomain)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrTenantNotFound
	}
	return nil
}
