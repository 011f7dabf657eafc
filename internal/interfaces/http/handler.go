package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/infrastructure"
	"project_associa/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// Deps is everything the HTTP layer talks to. WhatsApp may be nil outside whatsmeow mode.
type Deps struct {
	Router         *usecases.MessageRouter
	Reconciler     *usecases.ReconciliationEngine
	Tenants        *usecases.TenantResolver
	Attendants     *usecases.AttendantService
	Dashboard      *usecases.DashboardUsecase
	Auth           *usecases.AuthUsecase
	Hub            *infrastructure.Hub
	WhatsApp       *infrastructure.WhatsAppManager
	Metrics        *infrastructure.Metrics
	Logger         *slog.Logger
	WebhookTimeout time.Duration
}

type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.WebhookTimeout <= 0 {
		deps.WebhookTimeout = 25 * time.Second
	}
	return &Handler{Deps: deps}
}

func SetupRoutes(r *gin.Engine, deps Deps, middleware *Middleware) {
	h := NewHandler(deps)

	// Apply Security Middleware
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20))
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	// Gateway webhook: secret first, then per-session rate limit
	r.POST("/webhook", h.WebhookSecretRequired(), middleware.RateLimitByKey(20, 60, webhookSessionKey), h.HandleWebhook)

	api := r.Group("/api")
	api.POST("/auth/login", h.Login)
	api.POST("/associations/:slug/patients/validate",
		middleware.RateLimitByKey(2, 10, func(*gin.Context) string { return "" }),
		middleware.TenantRequired(),
		h.ValidatePatient)

	// Attendant routes, scoped to the association in the token
	attendant := api.Group("")
	attendant.Use(middleware.AuthRequired())
	attendant.Use(middleware.AttendantRequired())
	attendant.Use(middleware.RateLimitPerUser(10, 30))
	{
		attendant.GET("/conversations", h.ListConversations)
		attendant.GET("/conversations/:id/messages", h.ListMessages)
		attendant.POST("/conversations/:id/claim", h.ClaimConversation)
		attendant.POST("/conversations/:id/requeue", h.RequeueConversation)
		attendant.POST("/conversations/:id/close", h.CloseConversation)
		attendant.POST("/conversations/:id/messages", h.SendMessage)

		attendant.GET("/config", h.GetAllConfigs)
		attendant.POST("/config", h.SetConfig)

		attendant.GET("/ws/queue", h.QueueFeed)
	}

	// Admin-only Routes
	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired())
	admin.Use(middleware.AdminRequired())
	{
		admin.POST("/associations", h.CreateAssociation)
		admin.GET("/associations", h.ListAssociations)
		admin.PUT("/associations/:slug/status", h.SetAssociationStatus)
		admin.POST("/users", h.CreateAttendant)

		admin.GET("/sessions/:session/qr", h.GetSessionQRCode)
		admin.GET("/sessions/:session/status", h.GetSessionStatus)
		admin.POST("/sessions/:session/logout", h.LogoutSession)
	}
}

// WebhookSecretRequired rejects webhook calls whose shared-secret header does not match.
func (h *Handler) WebhookSecretRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.Router.VerifySecret(c.GetHeader("shared-secret")); err != nil {
			h.Metrics.Webhook("unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid shared secret"})
			return
		}
		c.Next()
	}
}

func webhookSessionKey(c *gin.Context) string {
	var evt entities.InboundEvent
	if err := c.ShouldBindBodyWith(&evt, binding.JSON); err != nil || evt.Session == "" {
		return ""
	}
	return "session:" + evt.Session
}

// HandleWebhook processes the event fully before acknowledging, within a bounded time.
func (h *Handler) HandleWebhook(c *gin.Context) {
	var evt entities.InboundEvent
	if err := c.ShouldBindBodyWith(&evt, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.WebhookTimeout)
	defer cancel()

	outcome, err := h.Router.HandleInbound(ctx, evt)
	if err != nil {
		status, msg := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("webhook processing failed", "session", evt.Session, "error", err)
		} else {
			h.Logger.Info("webhook rejected", "session", evt.Session, "status", status, "error", err)
		}
		body := gin.H{"error": msg}
		if outcome != "" {
			body["status"] = outcome
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": outcome})
}

// ValidatePatient is the onboarding lookup: it reconciles the phone against the association
// and tells the web flow whether to continue with the found patient or ask for data.
func (h *Handler) ValidatePatient(c *gin.Context) {
	association := currentAssociation(c)
	var req struct {
		WhatsApp string `json:"whatsapp" binding:"required"`
		Name     string `json:"name"`
		CPF      string `json:"cpf"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "whatsapp is required"})
		return
	}

	var form *usecases.LeadForm
	if name, cpf := strings.TrimSpace(SanitizeString(req.Name)), strings.TrimSpace(req.CPF); name != "" || cpf != "" {
		if !ValidateLength(name, 0, MaxNameLength) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name too long"})
			return
		}
		form = &usecases.LeadForm{Name: name, CPF: cpf}
	}

	ctx := c.Request.Context()
	res, err := h.Reconciler.Reconcile(ctx, association, req.WhatsApp, form)
	if errors.Is(err, entities.ErrDirectoryUnavailable) {
		if form == nil {
			c.JSON(http.StatusOK, gin.H{"status": "new_patient_step_2", "syncType": "directory_unavailable"})
			return
		}
		res, err = h.Reconciler.CaptureLead(ctx, association, req.WhatsApp, *form)
	}
	if errors.Is(err, entities.ErrNeedsLeadCapture) {
		c.JSON(http.StatusOK, gin.H{"status": "new_patient_step_2"})
		return
	}
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "patient_found",
		"syncType": res.SyncType,
		"patientData": gin.H{
			"id":                res.Patient.ID,
			"name":              res.Patient.Name,
			"whatsapp":          res.Patient.WhatsApp,
			"cpf":               res.Patient.CPF,
			"status":            res.Patient.Status,
			"responsible_name":  res.Patient.ResponsibleName,
			"relationship_type": res.Patient.RelationshipType,
			"interlocutor":      res.Interlocutor,
		},
	})
}

func (h *Handler) Login(c *gin.Context) {
	var loginReq struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	token, err := h.Auth.Login(c.Request.Context(), loginReq.Username, loginReq.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// errorStatus maps domain errors to HTTP statuses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, entities.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, entities.ErrTenantNotFound):
		return http.StatusNotFound, "association not found"
	case errors.Is(err, entities.ErrTenantInactive):
		return http.StatusForbidden, "service suspended"
	case errors.Is(err, entities.ErrInvalidPhone):
		return http.StatusUnprocessableEntity, "invalid phone"
	case errors.Is(err, entities.ErrConversationNotFound), errors.Is(err, entities.ErrPatientNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, entities.ErrInvalidTransition), errors.Is(err, entities.ErrDuplicateConversation):
		return http.StatusConflict, err.Error()
	case errors.Is(err, entities.ErrDirectoryUnavailable):
		return http.StatusServiceUnavailable, "directory unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "processing timed out"
	}
	return http.StatusInternalServerError, "internal error"
}
