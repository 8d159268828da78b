// Package repo persists tenant registry entries in the landlord database.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
)

const tenantColumns = `id, uuid, name, slug, email, first_name, last_name, password,
	user_id, database_name, database_host, status, setup_step, setup_error,
	setup_completed_at, trial_ends_at, plan_id, created_at, updated_at`

// PostgresRepository implements the tenant repository over the landlord pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository backed by the landlord pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("landlord pool is required")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tenants (uuid, name, slug, email, first_name, last_name, password,
			database_name, database_host, status, trial_ends_at, plan_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING `+tenantColumns,
		t.UUID, t.Name, t.Slug, t.Email, t.FirstName, t.LastName, t.PasswordHash,
		t.DatabaseName, t.DatabaseHost, string(t.Status), t.TrialEndsAt, t.PlanID, t.CreatedAt)

	out, err := scanTenant(row)
	if err != nil {
		return service.Tenant{}, mapConflict(err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return mapNotFound(scanTenant(row))
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	return mapNotFound(scanTenant(row))
}

func (r *PostgresRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE lower(email) = lower($1))`, email).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	where := ""
	args := []any{size, offset}
	if opts.Status != nil {
		where = " WHERE status = $3"
		args = append(args, string(*opts.Status))
	}

	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, args...)
	if err != nil {
		return service.ListResult{}, err
	}
	defer rows.Close()

	tenants := make([]service.Tenant, 0, size)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return service.ListResult{}, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return service.ListResult{}, err
	}

	countWhere := ""
	countArgs := []any{}
	if opts.Status != nil {
		countWhere = " WHERE status = $1"
		countArgs = append(countArgs, string(*opts.Status))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM tenants`+countWhere, countArgs...).Scan(&total); err != nil {
		return service.ListResult{}, err
	}

	totalPages := (total + size - 1) / size
	return service.ListResult{Tenants: tenants, Page: page, PageSize: size, TotalItems: total, TotalPages: totalPages}, nil
}

// UpdateStatus is the single write path for lifecycle transitions. It keeps
// the invariant that setup_completed_at is set exactly when the tenant goes
// active and cleared on every other transition.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status service.Status, step, setupErr *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants
		SET status = $2,
		    setup_step = $3,
		    setup_error = $4,
		    setup_completed_at = CASE WHEN $2 = 'active' THEN now() ELSE NULL END,
		    updated_at = now()
		WHERE id = $1`,
		id, string(status), step, setupErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetOwnerUser(ctx context.Context, id int64, userID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET user_id = $2, updated_at = now() WHERE id = $1`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (service.Tenant, error) {
	var (
		t      service.Tenant
		status string
	)
	err := row.Scan(
		&t.ID, &t.UUID, &t.Name, &t.Slug, &t.Email, &t.FirstName, &t.LastName,
		&t.PasswordHash, &t.UserID, &t.DatabaseName, &t.DatabaseHost, &status,
		&t.SetupStep, &t.SetupError, &t.SetupCompletedAt, &t.TrialEndsAt,
		&t.PlanID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return service.Tenant{}, err
	}
	t.Status, err = service.ParseStatus(status)
	if err != nil {
		return service.Tenant{}, fmt.Errorf("tenant %d: %w", t.ID, err)
	}
	return t, nil
}

func mapNotFound(t service.Tenant, err error) (service.Tenant, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, err
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch {
		case strings.Contains(pgErr.ConstraintName, "slug"):
			return service.ErrConflictSlug
		case strings.Contains(pgErr.ConstraintName, "email"):
			return service.ErrConflictEmail
		}
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
