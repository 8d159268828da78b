package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
)

// ErrDefaultRoleMissing is returned when owner creation runs against a tenant
// database whose seed data never landed.
var ErrDefaultRoleMissing = errors.New("default role not found: ensure seeding completed successfully")

// CreateOwner inserts the owner account into the tenant database and assigns
// it the default role, all in one transaction. The stored bcrypt hash from
// the registry row is reused verbatim, so retries never need the plaintext
// password. Returns the tenant-local user id.
func (d *Databases) CreateOwner(ctx context.Context, name string, t service.Tenant) (int64, error) {
	pool, err := d.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin owner tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	var userID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO users (uuid, email, first_name, last_name, password,
			is_owner, is_verified, email_verified_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, TRUE, $6)
		RETURNING id`,
		uuid.New(), t.Email, t.FirstName, t.LastName, t.PasswordHash, now).Scan(&userID)
	if err != nil {
		return 0, fmt.Errorf("inserting owner user: %w", err)
	}

	var roleID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM roles WHERE is_default ORDER BY id LIMIT 1`).Scan(&roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrDefaultRoleMissing
		}
		return 0, fmt.Errorf("looking up default role: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID); err != nil {
		return 0, fmt.Errorf("assigning default role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit owner tx: %w", err)
	}
	return userID, nil
}
