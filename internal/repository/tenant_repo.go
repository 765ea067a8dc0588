package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/degun-osint/brainnotfound-go-api/internal/models"
)

// TenantRepository defines data operations for tenants.
type TenantRepository interface {
	GetByID(ctx context.Context, id uint) (models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
}

type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository instantiates the repository.
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) GetByID(ctx context.Context, id uint) (models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		return models.Tenant{}, err
	}

	return tenant, nil
}

func (r *tenantRepository) Update(ctx context.Context, tenant *models.Tenant) error {
	return r.db.WithContext(ctx).Save(tenant).Error
}
