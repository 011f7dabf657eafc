package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"
)

type DashboardUsecase struct {
	associations interfaces.AssociationStore
	configs      interfaces.ConfigStore
	tenants      *TenantResolver
	logger       *slog.Logger
}

func NewDashboardUsecase(associations interfaces.AssociationStore, configs interfaces.ConfigStore, tenants *TenantResolver, logger *slog.Logger) *DashboardUsecase {
	return &DashboardUsecase{
		associations: associations,
		configs:      configs,
		tenants:      tenants,
		logger:       logger,
	}
}

// Association management (platform admin)

func (u *DashboardUsecase) CreateAssociation(ctx context.Context, a *entities.Association) error {
	a.Subdomain = strings.ToLower(strings.TrimSpace(a.Subdomain))
	a.GatewaySession = strings.TrimSpace(a.GatewaySession)
	if err := u.associations.Create(ctx, a); err != nil {
		return err
	}
	u.logger.Info("association created", "subdomain", a.Subdomain, "session", a.GatewaySession)
	return nil
}

func (u *DashboardUsecase) ListAssociations(ctx context.Context) ([]entities.Association, error) {
	list, err := u.associations.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []entities.Association{}
	}
	return list, nil
}

// SetAssociationActive toggles the association and drops its cached resolution.
func (u *DashboardUsecase) SetAssociationActive(ctx context.Context, subdomain string, active bool) error {
	a, err := u.associations.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return err
	}
	if a == nil {
		return entities.ErrTenantNotFound
	}
	if err := u.associations.SetActive(ctx, subdomain, active); err != nil {
		return err
	}
	u.tenants.Invalidate(ctx, a)
	u.logger.Info("association status changed", "subdomain", subdomain, "active", active)
	return nil
}

// Config management (tenant-aware)

func (u *DashboardUsecase) GetAllConfigs(ctx context.Context, associationID int) (map[string]string, error) {
	return u.configs.GetAllConfigs(ctx, associationID)
}

func (u *DashboardUsecase) SetConfig(ctx context.Context, associationID int, key, value string) error {
	if !entities.IsConfigKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	return u.configs.SetConfig(ctx, associationID, key, value)
}
