// Package directory bridges billing to the tenants domain without coupling
// the two service packages to each other.
package directory

import (
	"context"
	"errors"

	billing "github.com/Abdulquadri-hub/niceblog/domains/billing/be/service"
	tenants "github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
)

// TenantDirectory resolves tenants for billing by delegating to the tenants
// service.
type TenantDirectory struct {
	tenants *tenants.Service
}

// New constructs a TenantDirectory instance.
func New(svc *tenants.Service) *TenantDirectory {
	if svc == nil {
		panic("tenants service is required")
	}
	return &TenantDirectory{tenants: svc}
}

// Lookup translates the tenants domain record into billing's view of it.
func (d *TenantDirectory) Lookup(ctx context.Context, tenantID int64) (billing.TenantInfo, error) {
	t, err := d.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return billing.TenantInfo{}, billing.ErrTenantNotFound
		}
		return billing.TenantInfo{}, err
	}
	return billing.TenantInfo{
		ID:        t.ID,
		Name:      t.Name,
		Email:     t.Email,
		FirstName: t.FirstName,
		LastName:  t.LastName,
	}, nil
}
