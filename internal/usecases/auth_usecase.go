package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already exists")
)

const tokenTTL = 24 * time.Hour

type AuthUsecase struct {
	users        interfaces.UserStore
	associations interfaces.AssociationStore
	jwtSecret    []byte
}

func NewAuthUsecase(users interfaces.UserStore, associations interfaces.AssociationStore, secret string) *AuthUsecase {
	return &AuthUsecase{
		users:        users,
		associations: associations,
		jwtSecret:    []byte(secret),
	}
}

// CreateAttendant registers an attendant bound to the association with the given subdomain.
func (uc *AuthUsecase) CreateAttendant(ctx context.Context, subdomain, username, password string) (*entities.User, error) {
	association, err := uc.associations.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	if association == nil {
		return nil, entities.ErrTenantNotFound
	}
	return uc.create(ctx, username, password, entities.RoleAttendant, &association.ID)
}

func (uc *AuthUsecase) create(ctx context.Context, username, password, role string, associationID *int) (*entities.User, error) {
	existing, err := uc.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &entities.User{
		Username:      username,
		PasswordHash:  string(hashed),
		Role:          role,
		AssociationID: associationID,
		IsActive:      true,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (uc *AuthUsecase) Login(ctx context.Context, username, password string) (string, error) {
	user, err := uc.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil || !user.IsActive {
		return "", ErrInvalidCredentials
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return "", ErrInvalidCredentials
	}

	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     time.Now().Add(tokenTTL).Unix(),
	}
	if user.AssociationID != nil {
		claims["association_id"] = *user.AssociationID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// EnsureAdmin creates the platform admin if it does not exist (called on startup)
func (uc *AuthUsecase) EnsureAdmin(ctx context.Context, username, password string) error {
	if password == "" {
		return errors.New("admin password not configured")
	}
	user, err := uc.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if user != nil {
		return nil
	}
	_, err = uc.create(ctx, username, password, entities.RoleAdmin, nil)
	return err
}
