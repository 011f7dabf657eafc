package entities

import "time"

const (
	RoleAdmin     = "admin"
	RoleAttendant = "attendant"
)

// User is a platform operator (admin) or an attendant bound to one association.
type User struct {
	ID            int       `json:"id"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	AssociationID *int      `json:"association_id"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}
