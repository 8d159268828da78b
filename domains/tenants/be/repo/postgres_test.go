package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/repo"
	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/scheduler"
	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
	"github.com/Abdulquadri-hub/niceblog/platform/go/persistence"
)

func TestTenantStoreIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("landlord"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() {
		persistence.ClosePool(pool)
	})

	require.NoError(t, persistence.EnsureLandlordSchema(ctx, pool))
	// Bootstrapping twice must be a no-op.
	require.NoError(t, persistence.EnsureLandlordSchema(ctx, pool))

	store := repo.NewPostgresRepository(pool)

	dbName := "tenant_acme-blog_ab12cd"
	now := time.Now().UTC()
	created, err := store.Create(ctx, service.Tenant{
		UUID:         uuid.New(),
		Name:         "Acme Blog",
		Slug:         "acme-blog",
		Email:        "owner@acme.test",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: "$2a$12$notarealhash",
		DatabaseName: &dbName,
		DatabaseHost: "localhost",
		Status:       service.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, service.StatusPending, created.Status)

	exists, err := store.SlugExists(ctx, "acme-blog")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.EmailExists(ctx, "OWNER@ACME.TEST")
	require.NoError(t, err)
	require.True(t, exists)

	// Unique violations map onto domain conflicts.
	_, err = store.Create(ctx, service.Tenant{
		UUID: uuid.New(), Name: "Other", Slug: "acme-blog",
		Email: "other@acme.test", FirstName: "O", LastName: "T",
		PasswordHash: "x", DatabaseHost: "localhost", Status: service.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	})
	require.ErrorIs(t, err, service.ErrConflictSlug)

	_, err = store.Create(ctx, service.Tenant{
		UUID: uuid.New(), Name: "Other", Slug: "other",
		Email: "owner@acme.test", FirstName: "O", LastName: "T",
		PasswordHash: "x", DatabaseHost: "localhost", Status: service.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	})
	require.ErrorIs(t, err, service.ErrConflictEmail)

	// Status transitions: step labels land before completion, completed_at is
	// tied to active and cleared again when the tenant leaves it.
	step := "Creating database"
	require.NoError(t, store.UpdateStatus(ctx, created.ID, service.StatusCreatingDatabase, &step, nil))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, service.StatusCreatingDatabase, got.Status)
	require.Equal(t, "Creating database", *got.SetupStep)
	require.Nil(t, got.SetupCompletedAt)

	done := "Setup completed"
	require.NoError(t, store.UpdateStatus(ctx, created.ID, service.StatusActive, &done, nil))
	got, err = store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, service.StatusActive, got.Status)
	require.NotNil(t, got.SetupCompletedAt)

	cause := "seed failed"
	require.NoError(t, store.UpdateStatus(ctx, created.ID, service.StatusFailed, &step, &cause))
	got, err = store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Nil(t, got.SetupCompletedAt)
	require.Equal(t, "seed failed", *got.SetupError)

	require.NoError(t, store.SetOwnerUser(ctx, created.ID, 7))
	got, err = store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), *got.UserID)

	list, err := store.List(ctx, service.ListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, list.TotalItems)

	// The queue dedups on the live-job index and hands out each job once.
	queue := scheduler.NewPostgresQueue(pool)
	require.NoError(t, queue.Enqueue(ctx, created.ID))
	require.NoError(t, queue.Enqueue(ctx, created.ID))

	job, ok, err := queue.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created.ID, job.TenantID)
	require.Equal(t, 1, job.Attempts)

	_, ok, err = queue.Claim(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, queue.Complete(ctx, job.ID))

	// A finished job no longer blocks re-enqueueing.
	require.NoError(t, queue.Enqueue(ctx, created.ID))
	job2, ok, err := queue.Claim(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, job.ID, job2.ID)
	require.NoError(t, queue.Complete(ctx, job2.ID))

	require.NoError(t, store.Delete(ctx, created.ID))
	_, err = store.Get(ctx, created.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, created.ID), service.ErrNotFound)
}
