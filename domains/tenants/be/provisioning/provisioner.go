package provisioning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
)

// TenantDatabases is the set of database operations the provisioner drives.
// Databases implements it; tests substitute a recorder.
type TenantDatabases interface {
	Create(ctx context.Context, name string) error
	Migrate(ctx context.Context, name string) error
	Seed(ctx context.Context, name string) error
	Drop(ctx context.Context, name string) error
	CreateOwner(ctx context.Context, name string, t service.Tenant) (int64, error)
}

// Provisioner walks a tenant through the setup state machine. Each step
// writes its status and human-readable label to the registry BEFORE running
// the side effect, so an operator watching progress always sees the step that
// is (or was) in flight.
type Provisioner struct {
	repo      service.Repository
	databases TenantDatabases
	log       *zap.Logger
}

// NewProvisioner constructs a Provisioner with required dependencies.
func NewProvisioner(repo service.Repository, databases TenantDatabases, log *zap.Logger) *Provisioner {
	if repo == nil {
		panic("tenants repo is required")
	}
	if databases == nil {
		panic("tenant databases are required")
	}
	if log == nil {
		panic("logger is required")
	}
	return &Provisioner{repo: repo, databases: databases, log: log}
}

// Run executes the full setup sequence for one tenant. It is the scheduler's
// job body: any returned error counts as a failed attempt.
func (p *Provisioner) Run(ctx context.Context, tenantID int64) error {
	t, err := p.repo.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("loading tenant %d: %w", tenantID, err)
	}
	if t.Status == service.StatusActive {
		p.log.Info("tenant already active, skipping setup", zap.Int64("tenant_id", tenantID))
		return nil
	}
	if t.DatabaseName == nil || *t.DatabaseName == "" {
		return p.fail(ctx, t, "Validating tenant", fmt.Errorf("tenant %d has no database name assigned", tenantID))
	}
	dbName := *t.DatabaseName

	steps := []struct {
		status service.Status
		label  string
		run    func(context.Context) error
	}{
		{service.StatusCreatingDatabase, "Creating database", func(ctx context.Context) error {
			return p.databases.Create(ctx, dbName)
		}},
		{service.StatusRunningMigrations, "Running migrations", func(ctx context.Context) error {
			return p.databases.Migrate(ctx, dbName)
		}},
		{service.StatusSeedingData, "Seeding initial data", func(ctx context.Context) error {
			return p.databases.Seed(ctx, dbName)
		}},
		{service.StatusCreatingOwner, "Creating owner account", func(ctx context.Context) error {
			userID, err := p.databases.CreateOwner(ctx, dbName, t)
			if err != nil {
				return err
			}
			return p.repo.SetOwnerUser(ctx, t.ID, userID)
		}},
	}

	for _, step := range steps {
		label := step.label
		if err := p.repo.UpdateStatus(ctx, t.ID, step.status, &label, nil); err != nil {
			return fmt.Errorf("recording step %q for tenant %d: %w", label, t.ID, err)
		}
		if err := step.run(ctx); err != nil {
			return p.fail(ctx, t, label, err)
		}
	}

	doneLabel := "Setup completed"
	if err := p.repo.UpdateStatus(ctx, t.ID, service.StatusActive, &doneLabel, nil); err != nil {
		return fmt.Errorf("marking tenant %d active: %w", t.ID, err)
	}

	p.log.Info("tenant setup completed",
		zap.Int64("tenant_id", t.ID),
		zap.String("slug", t.Slug),
		zap.String("database", dbName))
	return nil
}

// fail records the failure on the registry row, then makes a best-effort
// attempt to drop the half-built database. Cleanup problems are logged but
// never override the original error.
func (p *Provisioner) fail(ctx context.Context, t service.Tenant, label string, cause error) error {
	msg := cause.Error()
	if err := p.repo.UpdateStatus(ctx, t.ID, service.StatusFailed, &label, &msg); err != nil {
		p.log.Error("recording setup failure",
			zap.Int64("tenant_id", t.ID), zap.Error(err))
	}

	if t.DatabaseName != nil && *t.DatabaseName != "" {
		if err := p.databases.Drop(ctx, *t.DatabaseName); err != nil {
			p.log.Error("cleanup after failed setup",
				zap.Int64("tenant_id", t.ID),
				zap.String("database", *t.DatabaseName),
				zap.Error(err))
		}
	}

	p.log.Error("tenant setup failed",
		zap.Int64("tenant_id", t.ID),
		zap.String("step", label),
		zap.Error(cause))
	return fmt.Errorf("tenant %d setup failed at %q: %w", t.ID, label, cause)
}
