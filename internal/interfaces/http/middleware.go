package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// Context keys set by the middleware chain.
const (
	ctxUserID        = "user_id"
	ctxRole          = "role"
	ctxAssociationID = "association_id"
	ctxAssociation   = "association"
)

// limiterIdleTimeout is how long a rate limit key may go unused before its bucket is dropped.
const limiterIdleTimeout = 10 * time.Minute

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

type Middleware struct {
	jwtSecret    []byte
	tenants      *usecases.TenantResolver
	rateLimiters map[string]*keyedLimiter
	lastSweep    time.Time
	now          func() time.Time
	mu           sync.Mutex
}

func NewMiddleware(secret string, tenants *usecases.TenantResolver) *Middleware {
	return &Middleware{
		jwtSecret:    []byte(secret),
		tenants:      tenants,
		rateLimiters: make(map[string]*keyedLimiter),
		lastSweep:    time.Now(),
		now:          time.Now,
	}
}

func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// browsers cannot set headers on websocket upgrades
			authHeader = c.Query("token")
		}
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.jwtSecret, nil
		})

		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if id, ok := claimInt(claims, "user_id"); ok {
				c.Set(ctxUserID, id)
			}
			c.Set(ctxRole, claims["role"])
			if id, ok := claimInt(claims, "association_id"); ok {
				c.Set(ctxAssociationID, id)
			}
		}
		if c.GetInt(ctxUserID) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Next()
	}
}

// AdminRequired must follow AuthRequired.
func (m *Middleware) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get(ctxRole); role != entities.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// AttendantRequired admits users bound to an association. Must follow AuthRequired.
func (m *Middleware) AttendantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetInt(ctxAssociationID) == 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "User is not bound to an association"})
			return
		}
		c.Next()
	}
}

// TenantRequired resolves the association from the :slug param, the X-Tenant header or
// the Host, in that order.
func (m *Middleware) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("slug")
		if key == "" {
			key = c.GetHeader("X-Tenant")
		}
		if key == "" {
			key = c.Request.Host
		}

		association, err := m.tenants.Resolve(c.Request.Context(), key)
		switch {
		case errors.Is(err, entities.ErrTenantNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "association not found"})
			return
		case errors.Is(err, entities.ErrTenantInactive):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "service suspended"})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve association"})
			return
		}

		c.Set(ctxAssociation, association)
		c.Next()
	}
}

// RateLimitPerUser limits requests based on "user_id" from context (must follow AuthRequired)
func (m *Middleware) RateLimitPerUser(r rate.Limit, b int) gin.HandlerFunc {
	return m.RateLimitByKey(r, b, func(c *gin.Context) string {
		if id := c.GetInt(ctxUserID); id != 0 {
			return "user:" + strconv.Itoa(id)
		}
		return ""
	})
}

// RateLimitByKey keeps one token bucket per key. An empty key falls back to the client IP.
func (m *Middleware) RateLimitByKey(r rate.Limit, b int, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		m.mu.Lock()
		now := m.now()
		m.evictIdle(now)
		entry, exists := m.rateLimiters[key]
		if !exists {
			entry = &keyedLimiter{limiter: rate.NewLimiter(r, b)}
			m.rateLimiters[key] = entry
		}
		entry.lastUsed = now
		m.mu.Unlock()

		if !entry.limiter.AllowN(now, 1) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// evictIdle drops buckets unused for limiterIdleTimeout, scanning at most once per
// half timeout. Caller holds m.mu.
func (m *Middleware) evictIdle(now time.Time) {
	if now.Sub(m.lastSweep) < limiterIdleTimeout/2 {
		return
	}
	m.lastSweep = now
	for key, entry := range m.rateLimiters {
		if now.Sub(entry.lastUsed) > limiterIdleTimeout {
			delete(m.rateLimiters, key)
		}
	}
}

// CORSMiddleware allows Cross-Origin requests
func (m *Middleware) CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Tenant, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Writer.Header().Set("Content-Security-Policy", "default-src 'self'")

		c.Next()
	}
}

// RequestSizeLimiter limits request body size to prevent DoS
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// JWT numbers decode as float64.
func claimInt(claims jwt.MapClaims, key string) (int, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func currentAssociation(c *gin.Context) *entities.Association {
	if v, ok := c.Get(ctxAssociation); ok {
		if a, ok := v.(*entities.Association); ok {
			return a
		}
	}
	return nil
}
