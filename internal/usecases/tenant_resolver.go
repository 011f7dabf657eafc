package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"
)

const (
	subdomainKeyPrefix = "tenant:sub:"
	sessionKeyPrefix   = "tenant:session:"
)

// TenantResolver maps hosts, slugs and gateway sessions to associations. Lookups go
// through a short-TTL cache; activation changes call Invalidate so no stale "active"
// read outlives the change.
type TenantResolver struct {
	store  interfaces.AssociationStore
	cache  interfaces.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewTenantResolver(store interfaces.AssociationStore, cache interfaces.Cache, ttl time.Duration, logger *slog.Logger) *TenantResolver {
	return &TenantResolver{store: store, cache: cache, ttl: ttl, logger: logger}
}

// cachedAssociation keeps the directory password, which Association hides from JSON.
type cachedAssociation struct {
	entities.Association
	DirectoryPassword string `json:"directory_password"`
}

// Resolve returns the association for a bare slug or a request host. An inactive
// association is returned together with ErrTenantInactive so callers can still read
// its suspension message.
func (r *TenantResolver) Resolve(ctx context.Context, hostOrSlug string) (*entities.Association, error) {
	sub := SubdomainFromHost(hostOrSlug)
	if sub == "" {
		return nil, entities.ErrTenantNotFound
	}
	return r.lookup(ctx, subdomainKeyPrefix+sub, func() (*entities.Association, error) {
		return r.store.GetBySubdomain(ctx, sub)
	})
}

// ResolveSession returns the association bound to a gateway session.
func (r *TenantResolver) ResolveSession(ctx context.Context, session string) (*entities.Association, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		return nil, entities.ErrTenantNotFound
	}
	return r.lookup(ctx, sessionKeyPrefix+session, func() (*entities.Association, error) {
		return r.store.GetBySession(ctx, session)
	})
}

// Invalidate drops every cached entry of the association.
func (r *TenantResolver) Invalidate(ctx context.Context, a *entities.Association) {
	if r.cache == nil || a == nil {
		return
	}
	keys := []string{subdomainKeyPrefix + a.Subdomain}
	if a.GatewaySession != "" {
		keys = append(keys, sessionKeyPrefix+a.GatewaySession)
	}
	if err := r.cache.Del(ctx, keys...); err != nil {
		r.logger.Warn("tenant cache invalidation failed", "subdomain", a.Subdomain, "error", err)
	}
}

func (r *TenantResolver) lookup(ctx context.Context, key string, load func() (*entities.Association, error)) (*entities.Association, error) {
	a := r.fromCache(ctx, key)
	if a == nil {
		var err error
		a, err = load()
		if err != nil {
			return nil, fmt.Errorf("resolve association: %w", err)
		}
		if a == nil {
			return nil, entities.ErrTenantNotFound
		}
		r.toCache(ctx, key, a)
	}
	if !a.Active {
		return a, entities.ErrTenantInactive
	}
	return a, nil
}

func (r *TenantResolver) fromCache(ctx context.Context, key string) *entities.Association {
	if r.cache == nil {
		return nil
	}
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrCacheMiss) {
			r.logger.Warn("tenant cache read failed", "key", key, "error", err)
		}
		return nil
	}
	var cached cachedAssociation
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		r.logger.Warn("tenant cache entry corrupt", "key", key, "error", err)
		return nil
	}
	a := cached.Association
	a.Directory.Password = cached.DirectoryPassword
	return &a
}

func (r *TenantResolver) toCache(ctx context.Context, key string, a *entities.Association) {
	if r.cache == nil || r.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(cachedAssociation{Association: *a, DirectoryPassword: a.Directory.Password})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, string(raw), r.ttl); err != nil {
		r.logger.Warn("tenant cache write failed", "key", key, "error", err)
	}
}

// SubdomainFromHost extracts the tenant slug: "acme" stays "acme", "acme.example.com:8080"
// becomes "acme". Two-label hosts such as "example.com" carry no subdomain.
func SubdomainFromHost(hostOrSlug string) string {
	s := strings.ToLower(strings.TrimSpace(hostOrSlug))
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	labels := strings.Split(s, ".")
	switch {
	case len(labels) == 1:
		return labels[0]
	case len(labels) >= 3:
		return labels[0]
	}
	return ""
}
