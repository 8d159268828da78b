// Package repo persists billing records (plans, subscriptions, transactions)
// in the landlord database.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdulquadri-hub/niceblog/domains/billing/be/gateway"
	"github.com/Abdulquadri-hub/niceblog/domains/billing/be/service"
)

const transactionColumns = `id, tenant_id, reference, type, amount, currency, status,
	payment_method, gateway, gateway_transaction_id, metadata, processed_at, created_at`

const planColumns = `id, name, slug, description, price, billing_cycle, features, is_active, created_at`

const subscriptionColumns = `id, tenant_id, plan_id, status, current_period_start,
	current_period_end, canceled_at, created_at`

// PostgresRepository implements the billing repository over the landlord pool.
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

func (r *PostgresRepository) CreateTransaction(ctx context.Context, t service.Transaction) (service.Transaction, error) {
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO transactions (tenant_id, reference, type, amount, currency, status,
			payment_method, gateway, gateway_transaction_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+transactionColumns,
		t.TenantID, t.Reference, t.Type, t.Amount, t.Currency, string(t.Status),
		t.PaymentMethod, t.Gateway, t.GatewayTransactionID, t.Metadata)
	return scanTransaction(row)
}

func (r *PostgresRepository) GetTransactionByReference(ctx context.Context, reference string) (service.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Transaction{}, service.ErrTransactionNotFound
	}
	return t, err
}

// UpdateTransactionStatus moves a transaction to its reconciled status.
// processed_at is stamped once the status is terminal; the gateway
// transaction id is only ever filled in, never blanked.
func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, reference string, status gateway.Status, gatewayTransactionID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET status = $2,
		    gateway_transaction_id = COALESCE(NULLIF($3, ''), gateway_transaction_id),
		    processed_at = CASE
		        WHEN $2 IN ('completed', 'failed', 'cancelled', 'refunded') THEN now()
		        ELSE processed_at
		    END
		WHERE reference = $1`,
		reference, string(status), gatewayTransactionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return service.ErrTransactionNotFound
	}
	return nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, tenantID int64) ([]service.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []service.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetPlan(ctx context.Context, id int64) (service.Plan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Plan{}, service.ErrPlanNotFound
	}
	return p, err
}

func (r *PostgresRepository) ListPlans(ctx context.Context) ([]service.Plan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+planColumns+` FROM plans WHERE is_active ORDER BY price, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []service.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateSubscription(ctx context.Context, s service.Subscription) (service.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tenant_subscriptions (tenant_id, plan_id, status)
		VALUES ($1, $2, $3)
		RETURNING `+subscriptionColumns,
		s.TenantID, s.PlanID, s.Status)
	return scanSubscription(row)
}

// CurrentSubscription returns the tenant's live subscription: active with an
// unexpired billing period.
func (r *PostgresRepository) CurrentSubscription(ctx context.Context, tenantID int64) (service.Subscription, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM tenant_subscriptions
		WHERE tenant_id = $1 AND status = 'active' AND current_period_end > now()
		ORDER BY current_period_end DESC
		LIMIT 1`, tenantID)

	s, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Subscription{}, false, nil
	}
	if err != nil {
		return service.Subscription{}, false, err
	}
	return s, true, nil
}

func (r *PostgresRepository) ActivateSubscription(ctx context.Context, id int64, periodStart, periodEnd time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tenant_subscriptions
		SET status = 'active', current_period_start = $2, current_period_end = $3
		WHERE id = $1`, id, periodStart, periodEnd)
	return err
}

func (r *PostgresRepository) CancelSubscription(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tenant_subscriptions
		SET status = 'canceled', canceled_at = $2
		WHERE id = $1`, id, at)
	return err
}

func scanTransaction(row pgx.Row) (service.Transaction, error) {
	var (
		t      service.Transaction
		status string
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.Reference, &t.Type, &t.Amount, &t.Currency,
		&status, &t.PaymentMethod, &t.Gateway, &t.GatewayTransactionID, &t.Metadata,
		&t.ProcessedAt, &t.CreatedAt)
	if err != nil {
		return service.Transaction{}, err
	}
	t.Status = gateway.Status(status)
	return t, nil
}

func scanPlan(row pgx.Row) (service.Plan, error) {
	var p service.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price,
		&p.BillingCycle, &p.Features, &p.IsActive, &p.CreatedAt)
	return p, err
}

func scanSubscription(row pgx.Row) (service.Subscription, error) {
	var s service.Subscription
	err := row.Scan(&s.ID, &s.TenantID, &s.PlanID, &s.Status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CanceledAt, &s.CreatedAt)
	return s, err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
