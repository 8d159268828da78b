// Package provisioning creates and tears down per-tenant databases and walks
// a tenant through the setup state machine.
package provisioning

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	sqlassets "github.com/Abdulquadri-hub/niceblog/database"
)

// gooseMu serializes migration runs: goose's base FS and dialect are process
// globals.
var gooseMu sync.Mutex

// Databases performs admin-level operations against the Postgres cluster:
// creating, migrating, seeding, dropping, and connecting to tenant databases.
type Databases struct {
	admin *pgxpool.Pool
	// adminConnString is reused as the template for tenant connections, with
	// only the database name swapped.
	adminConnString string
	log             *zap.Logger
}

// NewDatabases constructs a Databases manager. The pool and conn string must
// belong to a role allowed to run CREATE DATABASE.
func NewDatabases(admin *pgxpool.Pool, adminConnString string, log *zap.Logger) (*Databases, error) {
	if admin == nil {
		panic("admin pool is required")
	}
	if log == nil {
		panic("logger is required")
	}
	if _, err := pgx.ParseConfig(adminConnString); err != nil {
		return nil, fmt.Errorf("parsing admin conn string: %w", err)
	}
	return &Databases{admin: admin, adminConnString: adminConnString, log: log}, nil
}

// Exists reports whether a database with the given name exists.
func (d *Databases) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := d.admin.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking database %s: %w", name, err)
	}
	return exists, nil
}

// Create creates the tenant database if it does not exist yet. CREATE
// DATABASE cannot run inside a transaction, so existence is checked first.
func (d *Databases) Create(ctx context.Context, name string) error {
	exists, err := d.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		d.log.Info("database already exists, skipping create", zap.String("database", name))
		return nil
	}
	if _, err := d.admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("creating database %s: %w", name, err)
	}
	return nil
}

// Drop removes the tenant database, terminating live connections first.
func (d *Databases) Drop(ctx context.Context, name string) error {
	sql := "DROP DATABASE IF EXISTS " + pgx.Identifier{name}.Sanitize() + " WITH (FORCE)"
	if _, err := d.admin.Exec(ctx, sql); err != nil {
		return fmt.Errorf("dropping database %s: %w", name, err)
	}
	return nil
}

// Open returns a pool connected to the named tenant database. The caller owns
// the pool and must close it.
func (d *Databases) Open(ctx context.Context, name string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(d.adminConnString)
	if err != nil {
		return nil, fmt.Errorf("parsing conn string: %w", err)
	}
	cfg.ConnConfig.Database = name
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to tenant database %s: %w", name, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging tenant database %s: %w", name, err)
	}
	return pool, nil
}

// Migrate applies the embedded tenant migration set to the named database.
func (d *Databases) Migrate(ctx context.Context, name string) error {
	cfg, err := pgx.ParseConfig(d.adminConnString)
	if err != nil {
		return fmt.Errorf("parsing conn string: %w", err)
	}
	cfg.Database = name

	db := stdlib.OpenDB(*cfg)
	defer db.Close()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(sqlassets.TenantMigrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, sqlassets.TenantMigrationsDir); err != nil {
		return fmt.Errorf("migrating database %s: %w", name, err)
	}
	return nil
}

// Seed loads the baseline reference data into the named database. The seed
// SQL is idempotent, so re-running after a partial setup is safe.
func (d *Databases) Seed(ctx context.Context, name string) error {
	pool, err := d.Open(ctx, name)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, sqlassets.TenantSeedSQL); err != nil {
		return fmt.Errorf("seeding database %s: %w", name, err)
	}
	return nil
}
