package entities

import "time"

// Association is a tenant: every patient, conversation and message belongs to exactly one.
type Association struct {
	ID             int             `json:"id"`
	Subdomain      string          `json:"subdomain"`
	Name           string          `json:"name"`
	Active         bool            `json:"active"`
	GatewaySession string          `json:"gateway_session"`
	Directory      DirectoryConfig `json:"directory"`
	PrimaryColor   string          `json:"primary_color"`
	LogoURL        string          `json:"logo_url"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DirectoryConfig points at the association's WordPress/ACF directory.
type DirectoryConfig struct {
	BaseURL    string `json:"base_url"`
	Username   string `json:"username"`
	Password   string `json:"-"`
	PostType   string `json:"post_type"`
	PhoneField string `json:"phone_field"`
}

// Enabled reports whether a directory is configured for the association.
func (d DirectoryConfig) Enabled() bool {
	return d.BaseURL != ""
}

// DirectoryRecord is a contact returned by the external directory.
// Fields is the open custom-fields bag; its schema is tenant controlled.
type DirectoryRecord struct {
	ExternalID     string
	Title          string
	Fields         map[string]interface{}
	MatchedVariant string
}
