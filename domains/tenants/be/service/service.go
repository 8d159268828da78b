// Package service implements the tenant orchestration layer: it owns the
// tenant domain model and drives creation, deletion, retry, and progress
// reporting. Long-running provisioning itself happens asynchronously via the
// scheduler; this layer only records intent and enqueues work.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Abdulquadri-hub/niceblog/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound      = errors.New("tenant not found")
	ErrConflictSlug  = errors.New("tenant slug already exists")
	ErrConflictEmail = errors.New("tenant email already registered")
	ErrNotRetryable  = errors.New("tenant setup has not failed; nothing to retry")
	ErrInvalidInput  = errors.New("invalid input")
)

// Status is the lifecycle state of a tenant. The first five states mirror the
// provisioning steps; suspended and error are operator-assigned.
type Status string

const (
	StatusPending           Status = "pending"
	StatusCreatingDatabase  Status = "creating_database"
	StatusRunningMigrations Status = "running_migrations"
	StatusSeedingData       Status = "seeding_data"
	StatusCreatingOwner     Status = "creating_owner"
	StatusActive            Status = "active"
	StatusFailed            Status = "failed"
	StatusSuspended         Status = "suspended"
	StatusError             Status = "error"
)

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusCreatingDatabase, StatusRunningMigrations,
		StatusSeedingData, StatusCreatingOwner, StatusActive,
		StatusFailed, StatusSuspended, StatusError:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown tenant status %q", s)
	}
}

// HasFailed reports whether setup ended in the retryable failure state.
// Suspended and error are operator-assigned and stay out of the retry path.
func (s Status) HasFailed() bool {
	return s == StatusFailed
}

// IsComplete reports whether provisioning finished successfully.
func (s Status) IsComplete() bool {
	return s == StatusActive
}

// Tenant is the landlord-side registry entry for one customer site.
type Tenant struct {
	ID               int64
	UUID             uuid.UUID
	Name             string
	Slug             string
	Email            string
	FirstName        string
	LastName         string
	PasswordHash     string
	UserID           *int64
	DatabaseName     *string
	DatabaseHost     string
	Status           Status
	SetupStep        *string
	SetupError       *string
	SetupCompletedAt *time.Time
	TrialEndsAt      *time.Time
	PlanID           *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateInput carries the fields needed to register a tenant.
type CreateInput struct {
	Name      string
	Email     string
	FirstName string
	LastName  string
	Password  string
	PlanID    *int64
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return fmt.Errorf("%w: first name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.LastName) == "" {
		return fmt.Errorf("%w: last name is required", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	return nil
}

// SetupProgress is a read-only projection of provisioning state.
type SetupProgress struct {
	Status      Status
	Step        *string
	Error       *string
	CompletedAt *time.Time
	IsComplete  bool
	HasFailed   bool
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *Status
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts tenant persistence in the landlord database.
type Repository interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id int64) (Tenant, error)
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	UpdateStatus(ctx context.Context, id int64, status Status, step, setupErr *string) error
	SetOwnerUser(ctx context.Context, id int64, userID int64) error
	Delete(ctx context.Context, id int64) error
}

// Queue schedules a provisioning run for a tenant. Enqueueing the same tenant
// while a run is already queued or in flight is a no-op.
type Queue interface {
	Enqueue(ctx context.Context, tenantID int64) error
}

// DatabaseDropper removes a tenant database. Implemented by the provisioning
// package against the admin connection.
type DatabaseDropper interface {
	Drop(ctx context.Context, databaseName string) error
}

// Config carries environment-dependent service settings.
type Config struct {
	EnvKey    string
	TrialDays int
}

// Service provides tenant orchestration operations.
type Service struct {
	repo      Repository
	queue     Queue
	databases DatabaseDropper
	log       *zap.Logger
	envKey    string
	trialDays int
}

// New constructs a Service with required dependencies.
func New(repo Repository, queue Queue, databases DatabaseDropper, log *zap.Logger, cfg Config) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if queue == nil {
		panic("provisioning queue is required")
	}
	if databases == nil {
		panic("database dropper is required")
	}
	if log == nil {
		panic("logger is required")
	}
	if cfg.EnvKey == "" {
		panic("envKey is required")
	}
	return &Service{
		repo:      repo,
		queue:     queue,
		databases: databases,
		log:       log,
		envKey:    cfg.EnvKey,
		trialDays: cfg.TrialDays,
	}
}

// maxSlugAttempts bounds the numbered-suffix search for a free slug.
const maxSlugAttempts = 100

// Create registers a tenant in pending state and enqueues its provisioning
// run. The database name is derived exactly once here and never mutated.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	if err := input.validate(); err != nil {
		return Tenant{}, err
	}

	taken, err := s.repo.EmailExists(ctx, input.Email)
	if err != nil {
		return Tenant{}, fmt.Errorf("checking email: %w", err)
	}
	if taken {
		return Tenant{}, ErrConflictEmail
	}

	slug, err := s.uniqueSlug(ctx, input.Name)
	if err != nil {
		return Tenant{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), 12)
	if err != nil {
		return Tenant{}, fmt.Errorf("hashing password: %w", err)
	}

	dbName := tenant.DatabaseName(tenant.DatabasePrefix(s.envKey), slug)
	now := time.Now().UTC()

	t := Tenant{
		UUID:         uuid.New(),
		Name:         input.Name,
		Slug:         slug,
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: string(hash),
		DatabaseName: &dbName,
		DatabaseHost: "localhost",
		Status:       StatusPending,
		PlanID:       input.PlanID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.trialDays > 0 {
		trialEnd := now.AddDate(0, 0, s.trialDays)
		t.TrialEndsAt = &trialEnd
	}

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return Tenant{}, err
	}

	if err := s.queue.Enqueue(ctx, created.ID); err != nil {
		return Tenant{}, fmt.Errorf("enqueueing setup for tenant %d: %w", created.ID, err)
	}

	s.log.Info("tenant registered",
		zap.Int64("tenant_id", created.ID),
		zap.String("slug", created.Slug),
		zap.String("database", dbName))

	return created, nil
}

// uniqueSlug derives a slug from the tenant name and appends -1, -2, … until
// it finds one not yet taken.
func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := tenant.Slugify(name)
	if base == "" {
		return "", fmt.Errorf("%w: name does not yield a usable slug", ErrInvalidInput)
	}

	candidate := base
	for i := 1; i <= maxSlugAttempts; i++ {
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking slug %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = tenant.NumberedSlug(base, i)
	}
	return "", fmt.Errorf("no free slug found for %q after %d attempts", base, maxSlugAttempts)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id int64) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// GetBySlug returns a tenant by its slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	return s.repo.FindBySlug(ctx, slug)
}

// List tenants with optional status filter.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Delete removes a tenant and its database. The database drop runs first; if
// it fails the registry row is kept so the operation can be repeated.
func (s *Service) Delete(ctx context.Context, id int64) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if t.DatabaseName != nil && *t.DatabaseName != "" {
		if err := s.databases.Drop(ctx, *t.DatabaseName); err != nil {
			return fmt.Errorf("dropping database %s: %w", *t.DatabaseName, err)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info("tenant deleted", zap.Int64("tenant_id", id), zap.String("slug", t.Slug))
	return nil
}

// RetrySetup re-enqueues provisioning for a tenant whose setup failed. The
// provisioner re-derives all owner data from the stored record, so the retry
// needs no input beyond the tenant id.
func (s *Service) RetrySetup(ctx context.Context, id int64) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.Status.HasFailed() {
		return ErrNotRetryable
	}

	step := "Retrying setup"
	if err := s.repo.UpdateStatus(ctx, id, StatusPending, &step, nil); err != nil {
		return fmt.Errorf("resetting tenant %d: %w", id, err)
	}
	if err := s.queue.Enqueue(ctx, id); err != nil {
		return fmt.Errorf("enqueueing retry for tenant %d: %w", id, err)
	}

	s.log.Info("tenant setup retry scheduled", zap.Int64("tenant_id", id))
	return nil
}

// GetSetupProgress projects the current provisioning state of a tenant.
func (s *Service) GetSetupProgress(ctx context.Context, id int64) (SetupProgress, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return SetupProgress{}, err
	}
	return SetupProgress{
		Status:      t.Status,
		Step:        t.SetupStep,
		Error:       t.SetupError,
		CompletedAt: t.SetupCompletedAt,
		IsComplete:  t.Status.IsComplete(),
		HasFailed:   t.Status.HasFailed(),
	}, nil
}
