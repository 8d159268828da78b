package provisioning

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/repo"
	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
)

type stubDatabases struct {
	calls      []string
	createErr  error
	migrateErr error
	seedErr    error
	ownerErr   error
	dropErr    error
}

func (s *stubDatabases) Create(context.Context, string) error {
	s.calls = append(s.calls, "create")
	return s.createErr
}

func (s *stubDatabases) Migrate(context.Context, string) error {
	s.calls = append(s.calls, "migrate")
	return s.migrateErr
}

func (s *stubDatabases) Seed(context.Context, string) error {
	s.calls = append(s.calls, "seed")
	return s.seedErr
}

func (s *stubDatabases) Drop(context.Context, string) error {
	s.calls = append(s.calls, "drop")
	return s.dropErr
}

func (s *stubDatabases) CreateOwner(context.Context, string, service.Tenant) (int64, error) {
	s.calls = append(s.calls, "owner")
	if s.ownerErr != nil {
		return 0, s.ownerErr
	}
	return 42, nil
}

func seedTenant(t *testing.T, r *repo.MemoryRepository) service.Tenant {
	t.Helper()
	dbName := "tenant_acme_abc123"
	created, err := r.Create(context.Background(), service.Tenant{
		UUID:         uuid.New(),
		Name:         "Acme",
		Slug:         "acme",
		Email:        "owner@acme.test",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: "$2a$12$fakehash",
		DatabaseName: &dbName,
		DatabaseHost: "localhost",
		Status:       service.StatusPending,
	})
	require.NoError(t, err)
	return created
}

func TestRunCompletesAllSteps(t *testing.T) {
	r := repo.NewMemoryRepository()
	tenant := seedTenant(t, r)
	dbs := &stubDatabases{}
	p := NewProvisioner(r, dbs, zap.NewNop())

	require.NoError(t, p.Run(context.Background(), tenant.ID))

	require.Equal(t, []string{"create", "migrate", "seed", "owner"}, dbs.calls)

	got, err := r.Get(context.Background(), tenant.ID)
	require.NoError(t, err)
	require.Equal(t, service.StatusActive, got.Status)
	require.NotNil(t, got.SetupCompletedAt)
	require.Nil(t, got.SetupError)
	require.NotNil(t, got.UserID)
	require.Equal(t, int64(42), *got.UserID)
	require.NotNil(t, got.SetupStep)
	require.Equal(t, "Setup completed", *got.SetupStep)
}

func TestRunFailureStopsAndCleansUp(t *testing.T) {
	r := repo.NewMemoryRepository()
	tenant := seedTenant(t, r)
	dbs := &stubDatabases{seedErr: errors.New("seed exploded")}
	p := NewProvisioner(r, dbs, zap.NewNop())

	err := p.Run(context.Background(), tenant.ID)
	require.Error(t, err)
	require.ErrorContains(t, err, "seed exploded")

	// Owner creation must never run once an earlier step failed; the database
	// is dropped instead.
	require.Equal(t, []string{"create", "migrate", "seed", "drop"}, dbs.calls)

	got, getErr := r.Get(context.Background(), tenant.ID)
	require.NoError(t, getErr)
	require.Equal(t, service.StatusFailed, got.Status)
	require.Nil(t, got.SetupCompletedAt)
	require.NotNil(t, got.SetupStep)
	require.Equal(t, "Seeding initial data", *got.SetupStep)
	require.NotNil(t, got.SetupError)
	require.Contains(t, *got.SetupError, "seed exploded")
}

func TestRunCleanupErrorDoesNotMaskCause(t *testing.T) {
	r := repo.NewMemoryRepository()
	tenant := seedTenant(t, r)
	dbs := &stubDatabases{
		migrateErr: errors.New("migration broke"),
		dropErr:    errors.New("drop also broke"),
	}
	p := NewProvisioner(r, dbs, zap.NewNop())

	err := p.Run(context.Background(), tenant.ID)
	require.Error(t, err)
	require.ErrorContains(t, err, "migration broke")
	require.NotContains(t, err.Error(), "drop also broke")
}

func TestRunSkipsActiveTenant(t *testing.T) {
	r := repo.NewMemoryRepository()
	tenant := seedTenant(t, r)
	require.NoError(t, r.UpdateStatus(context.Background(), tenant.ID, service.StatusActive, nil, nil))

	dbs := &stubDatabases{}
	p := NewProvisioner(r, dbs, zap.NewNop())

	require.NoError(t, p.Run(context.Background(), tenant.ID))
	require.Empty(t, dbs.calls)
}

func TestRunWithoutDatabaseNameFails(t *testing.T) {
	r := repo.NewMemoryRepository()
	created, err := r.Create(context.Background(), service.Tenant{
		UUID:   uuid.New(),
		Name:   "No DB",
		Slug:   "no-db",
		Email:  "nodb@example.test",
		Status: service.StatusPending,
	})
	require.NoError(t, err)

	dbs := &stubDatabases{}
	p := NewProvisioner(r, dbs, zap.NewNop())

	err = p.Run(context.Background(), created.ID)
	require.Error(t, err)

	got, getErr := r.Get(context.Background(), created.ID)
	require.NoError(t, getErr)
	require.Equal(t, service.StatusFailed, got.Status)
	// No database name means nothing to drop.
	require.Empty(t, dbs.calls)
}
