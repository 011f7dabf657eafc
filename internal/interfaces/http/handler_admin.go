package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"project_associa/internal/entities"
	"project_associa/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

type associationRequest struct {
	Subdomain      string `json:"subdomain" binding:"required"`
	Name           string `json:"name" binding:"required"`
	GatewaySession string `json:"gateway_session"`
	PrimaryColor   string `json:"primary_color"`
	LogoURL        string `json:"logo_url"`
	Directory      struct {
		BaseURL    string `json:"base_url"`
		Username   string `json:"username"`
		Password   string `json:"password"`
		PostType   string `json:"post_type"`
		PhoneField string `json:"phone_field"`
	} `json:"directory"`
}

// CreateAssociation registers a new tenant (active on creation)
func (h *Handler) CreateAssociation(c *gin.Context) {
	var req associationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subdomain and name are required"})
		return
	}
	req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))
	if !ValidSlug(req.Subdomain) || (req.GatewaySession != "" && !ValidSlug(req.GatewaySession)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subdomain or gateway session"})
		return
	}
	if !ValidateLength(req.Name, 1, MaxNameLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid name"})
		return
	}

	a := &entities.Association{
		Subdomain:      req.Subdomain,
		Name:           SanitizeString(req.Name),
		Active:         true,
		GatewaySession: req.GatewaySession,
		PrimaryColor:   req.PrimaryColor,
		LogoURL:        req.LogoURL,
		Directory: entities.DirectoryConfig{
			BaseURL:    strings.TrimRight(req.Directory.BaseURL, "/"),
			Username:   req.Directory.Username,
			Password:   req.Directory.Password,
			PostType:   req.Directory.PostType,
			PhoneField: req.Directory.PhoneField,
		},
	}
	if err := h.Dashboard.CreateAssociation(c.Request.Context(), a); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ListAssociations returns every tenant, active or not
func (h *Handler) ListAssociations(c *gin.Context) {
	list, err := h.Dashboard.ListAssociations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch associations"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// SetAssociationStatus activates or suspends a tenant
func (h *Handler) SetAssociationStatus(c *gin.Context) {
	var payload struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "active is required"})
		return
	}
	err := h.Dashboard.SetAssociationActive(c.Request.Context(), c.Param("slug"), *payload.Active)
	if errors.Is(err, entities.ErrTenantNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "association not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update association"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "active": *payload.Active})
}

// CreateAttendant registers an attendant bound to an association
func (h *Handler) CreateAttendant(c *gin.Context) {
	var req struct {
		Association string `json:"association" binding:"required"`
		Username    string `json:"username" binding:"required"`
		Password    string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidSlug(strings.ToLower(req.Username)) || len(req.Password) < MinPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username or password (min 6 chars)"})
		return
	}

	user, err := h.Auth.CreateAttendant(c.Request.Context(), req.Association, strings.ToLower(req.Username), req.Password)
	switch {
	case errors.Is(err, entities.ErrTenantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "association not found"})
	case errors.Is(err, usecases.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
	default:
		c.JSON(http.StatusCreated, user)
	}
}

// ========================================
// WhatsApp device sessions (whatsmeow mode)
// ========================================

// GetSessionQRCode returns the pairing QR code PNG of a session
func (h *Handler) GetSessionQRCode(c *gin.Context) {
	if h.WhatsApp == nil {
		c.String(http.StatusServiceUnavailable, "WhatsApp device sessions not enabled")
		return
	}
	session := c.Param("session")

	// the QR channel must outlive this request
	client, err := h.WhatsApp.GetOrCreateClient(context.Background(), session)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to create client: "+err.Error())
		return
	}

	// Connect if not already
	if !client.IsLoggedIn() && !client.Client.IsConnected() {
		if err := client.Connect(context.Background()); err != nil {
			c.String(http.StatusInternalServerError, "Failed to connect: "+err.Error())
			return
		}
	}

	qrCodeString := client.GetQR()
	if qrCodeString == "" {
		if client.IsLoggedIn() {
			c.String(http.StatusOK, "Already logged in")
			return
		}
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}

	png, err := qrcode.Encode(qrCodeString, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// GetSessionStatus returns the device connection status of a session
func (h *Handler) GetSessionStatus(c *gin.Context) {
	if h.WhatsApp == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "error": "WhatsApp device sessions not enabled"})
		return
	}

	client := h.WhatsApp.GetClient(c.Param("session"))
	if client == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "initialized": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":   client.IsConnected(),
		"logged_in":   client.IsLoggedIn(),
		"initialized": true,
		"phone":       client.GetPhoneNumber(),
		"hasQR":       client.GetQR() != "",
	})
}

// LogoutSession unpairs the device of a session
func (h *Handler) LogoutSession(c *gin.Context) {
	if h.WhatsApp == nil {
		c.JSON(http.StatusOK, gin.H{"status": "logged_out", "message": "WhatsApp device sessions not enabled"})
		return
	}

	session := c.Param("session")
	if err := h.WhatsApp.LogoutClient(c.Request.Context(), session); err != nil {
		// already gone on the phone side; the local client is dropped either way
		h.Logger.Warn("whatsapp logout failed", "session", session, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}
