// Package service implements subscription billing: initializing payments
// through a gateway, recording transactions, and reconciling their status
// from webhooks.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Abdulquadri-hub/niceblog/domains/billing/be/gateway"
)

// Errors returned by the billing layer.
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrPlanInactive        = errors.New("plan is not active")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrSamePlan            = errors.New("tenant is already on this plan")
)

// Transaction types.
const (
	TypeSubscription = "subscription"
	TypeCommission   = "commission"
	TypePayout       = "payout"
)

// Subscription statuses.
const (
	SubscriptionPending  = "pending"
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

// Plan is a billable subscription plan. Price is in minor units.
type Plan struct {
	ID           int64
	Name         string
	Slug         string
	Description  *string
	Price        int64
	BillingCycle string
	Features     []string
	IsActive     bool
	CreatedAt    time.Time
}

// periodEnd computes the end of a billing period starting at start.
func (p Plan) periodEnd(start time.Time) time.Time {
	switch p.BillingCycle {
	case "yearly":
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Subscription binds a tenant to a plan for a billing period.
type Subscription struct {
	ID                 int64
	TenantID           int64
	PlanID             int64
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
	CreatedAt          time.Time
}

// Transaction is one payment attempt, insert-only. Status moves through the
// normalized gateway statuses as verification and webhooks come in.
type Transaction struct {
	ID                   int64
	TenantID             int64
	Reference            string
	Type                 string
	Amount               int64
	Currency             string
	Status               gateway.Status
	PaymentMethod        *string
	Gateway              string
	GatewayTransactionID *string
	Metadata             map[string]string
	ProcessedAt          *time.Time
	CreatedAt            time.Time
}

// Repository abstracts billing persistence in the landlord database.
type Repository interface {
	CreateTransaction(ctx context.Context, t Transaction) (Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, reference string, status gateway.Status, gatewayTransactionID string) error
	ListTransactions(ctx context.Context, tenantID int64) ([]Transaction, error)

	GetPlan(ctx context.Context, id int64) (Plan, error)
	ListPlans(ctx context.Context) ([]Plan, error)

	CreateSubscription(ctx context.Context, s Subscription) (Subscription, error)
	CurrentSubscription(ctx context.Context, tenantID int64) (Subscription, bool, error)
	ActivateSubscription(ctx context.Context, id int64, periodStart, periodEnd time.Time) error
	CancelSubscription(ctx context.Context, id int64, at time.Time) error
}

// TenantInfo is the slice of the tenant record billing needs.
type TenantInfo struct {
	ID        int64
	Name      string
	Email     string
	FirstName string
	LastName  string
}

// TenantDirectory resolves tenants without binding billing to the tenants
// domain's full service.
type TenantDirectory interface {
	Lookup(ctx context.Context, tenantID int64) (TenantInfo, error)
}

// Config carries billing defaults.
type Config struct {
	DefaultGateway  string
	DefaultCurrency string
	CallbackURL     string
}

// Service provides subscription billing operations.
type Service struct {
	repo     Repository
	tenants  TenantDirectory
	gateways *gateway.Registry
	log      *zap.Logger
	cfg      Config
}

// New constructs a Service with required dependencies.
func New(repo Repository, tenants TenantDirectory, gateways *gateway.Registry, log *zap.Logger, cfg Config) *Service {
	if repo == nil {
		panic("billing repo is required")
	}
	if tenants == nil {
		panic("tenant directory is required")
	}
	if gateways == nil {
		panic("gateway registry is required")
	}
	if log == nil {
		panic("logger is required")
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "NGN"
	}
	return &Service{repo: repo, tenants: tenants, gateways: gateways, log: log, cfg: cfg}
}

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewReference mints a unique payment reference, "REF_" plus ten random
// upper-alphanumerics.
func NewReference() string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return "REF_" + string(buf)
}

// SubscribeInput selects what to pay for and through which provider.
type SubscribeInput struct {
	TenantID    int64
	PlanID      int64
	Gateway     string
	Currency    string
	CallbackURL string
}

// SubscribeResult is the started payment: the recorded transaction plus the
// URL the customer must visit to authorize it.
type SubscribeResult struct {
	Transaction      Transaction
	AuthorizationURL string
}

// Subscribe starts a subscription payment: it initializes the charge with
// the chosen gateway, records the transaction, and opens a pending
// subscription bound to it. Gateway rejections are recorded as failed
// transactions before the error is surfaced; transport errors abort with
// nothing persisted.
func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (SubscribeResult, error) {
	tenant, plan, client, err := s.resolve(ctx, input)
	if err != nil {
		return SubscribeResult{}, err
	}
	return s.charge(ctx, tenant, plan, client, input)
}

// Upgrade moves a tenant onto a new plan. With no current subscription it
// behaves exactly like Subscribe; otherwise the payment is bound to a fresh
// pending subscription that replaces the current one once paid.
func (s *Service) Upgrade(ctx context.Context, input SubscribeInput) (SubscribeResult, error) {
	tenant, plan, client, err := s.resolve(ctx, input)
	if err != nil {
		return SubscribeResult{}, err
	}

	current, ok, err := s.repo.CurrentSubscription(ctx, tenant.ID)
	if err != nil {
		return SubscribeResult{}, fmt.Errorf("resolving current subscription: %w", err)
	}
	if ok && current.PlanID == plan.ID {
		return SubscribeResult{}, fmt.Errorf("tenant %d is already on plan %d: %w", tenant.ID, plan.ID, ErrSamePlan)
	}

	return s.charge(ctx, tenant, plan, client, input)
}

// resolve validates the subscribe/upgrade input against the directory, plan
// catalog, and gateway registry. An unknown gateway is a hard failure.
func (s *Service) resolve(ctx context.Context, input SubscribeInput) (TenantInfo, Plan, gateway.Client, error) {
	tenant, err := s.tenants.Lookup(ctx, input.TenantID)
	if err != nil {
		return TenantInfo{}, Plan{}, nil, err
	}

	plan, err := s.repo.GetPlan(ctx, input.PlanID)
	if err != nil {
		return TenantInfo{}, Plan{}, nil, err
	}
	if !plan.IsActive {
		return TenantInfo{}, Plan{}, nil, ErrPlanInactive
	}

	name := input.Gateway
	if name == "" {
		name = s.cfg.DefaultGateway
	}
	client, err := s.gateways.Get(name)
	if err != nil {
		return TenantInfo{}, Plan{}, nil, err
	}
	return tenant, plan, client, nil
}

func (s *Service) charge(ctx context.Context, tenant TenantInfo, plan Plan, client gateway.Client, input SubscribeInput) (SubscribeResult, error) {
	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	callbackURL := input.CallbackURL
	if callbackURL == "" {
		callbackURL = s.cfg.CallbackURL
	}

	reference := NewReference()
	metadata := map[string]string{
		"plan_id":   strconv.FormatInt(plan.ID, 10),
		"tenant_id": strconv.FormatInt(tenant.ID, 10),
	}

	result, err := client.Initialize(ctx, gateway.PaymentRequest{
		Amount:      plan.Price,
		Currency:    currency,
		Email:       tenant.Email,
		Name:        strings.TrimSpace(tenant.FirstName + " " + tenant.LastName),
		Reference:   reference,
		CallbackURL: callbackURL,
		Metadata:    metadata,
	})

	txn := Transaction{
		TenantID:  tenant.ID,
		Reference: reference,
		Type:      TypeSubscription,
		Amount:    plan.Price,
		Currency:  currency,
		Status:    gateway.StatusPending,
		Gateway:   client.Name(),
		Metadata:  metadata,
	}

	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && gwErr.StatusCode > 0 {
			// The provider answered and rejected the charge: keep the failed
			// attempt on record, then surface the error.
			txn.Status = gateway.StatusFailed
			if _, recErr := s.repo.CreateTransaction(ctx, txn); recErr != nil {
				s.log.Error("recording rejected transaction",
					zap.String("reference", reference), zap.Error(recErr))
			}
		}
		return SubscribeResult{}, err
	}

	// The gateway accepted the charge. Only now open the pending subscription
	// the completed payment will activate, so failed attempts leave no
	// subscription rows behind.
	sub, err := s.repo.CreateSubscription(ctx, Subscription{
		TenantID: tenant.ID,
		PlanID:   plan.ID,
		Status:   SubscriptionPending,
	})
	if err != nil {
		return SubscribeResult{}, fmt.Errorf("creating subscription: %w", err)
	}
	txn.Metadata["subscription_id"] = strconv.FormatInt(sub.ID, 10)

	if result.GatewayTransactionID != "" {
		txn.GatewayTransactionID = &result.GatewayTransactionID
	}
	created, err := s.repo.CreateTransaction(ctx, txn)
	if err != nil {
		return SubscribeResult{}, fmt.Errorf("recording transaction: %w", err)
	}

	s.log.Info("subscription payment initialized",
		zap.Int64("tenant_id", tenant.ID),
		zap.Int64("plan_id", plan.ID),
		zap.String("gateway", client.Name()),
		zap.String("reference", reference))

	return SubscribeResult{Transaction: created, AuthorizationURL: result.AuthorizationURL}, nil
}

// VerifyPayment re-checks a payment with its gateway and stores the outcome.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (Transaction, error) {
	txn, err := s.repo.GetTransactionByReference(ctx, reference)
	if err != nil {
		return Transaction{}, err
	}

	client, err := s.gateways.Get(txn.Gateway)
	if err != nil {
		return Transaction{}, err
	}

	result, err := client.Verify(ctx, reference)
	if err != nil {
		return Transaction{}, err
	}

	if err := s.applyStatus(ctx, txn, result.Status, result.GatewayTransactionID); err != nil {
		return Transaction{}, err
	}
	return s.repo.GetTransactionByReference(ctx, reference)
}

// HandleWebhook verifies a gateway event and reconciles the referenced
// transaction. The stored status comes from a fresh Verify call, never from
// the webhook body alone.
func (s *Service) HandleWebhook(ctx context.Context, gatewayName string, payload []byte, signature string) error {
	client, err := s.gateways.Get(gatewayName)
	if err != nil {
		return err
	}

	reference, err := client.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}

	txn, err := s.repo.GetTransactionByReference(ctx, reference)
	if err != nil {
		return err
	}

	result, err := client.Verify(ctx, reference)
	if err != nil {
		return err
	}

	if err := s.applyStatus(ctx, txn, result.Status, result.GatewayTransactionID); err != nil {
		return err
	}

	s.log.Info("webhook reconciled",
		zap.String("gateway", gatewayName),
		zap.String("reference", reference),
		zap.String("status", string(result.Status)))
	return nil
}

// applyStatus persists a transaction status change and, on completion,
// activates the subscription the payment was for.
func (s *Service) applyStatus(ctx context.Context, txn Transaction, status gateway.Status, gatewayTransactionID string) error {
	if err := s.repo.UpdateTransactionStatus(ctx, txn.Reference, status, gatewayTransactionID); err != nil {
		return fmt.Errorf("updating transaction %s: %w", txn.Reference, err)
	}
	if status != gateway.StatusCompleted {
		return nil
	}

	subID, err := strconv.ParseInt(txn.Metadata["subscription_id"], 10, 64)
	if err != nil {
		s.log.Warn("completed transaction without subscription metadata",
			zap.String("reference", txn.Reference))
		return nil
	}
	planID, err := strconv.ParseInt(txn.Metadata["plan_id"], 10, 64)
	if err != nil {
		return fmt.Errorf("transaction %s has no plan metadata", txn.Reference)
	}
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return err
	}

	// Cancel the plan the tenant is moving away from, if any.
	if current, ok, err := s.repo.CurrentSubscription(ctx, txn.TenantID); err != nil {
		return err
	} else if ok && current.ID != subID {
		if err := s.repo.CancelSubscription(ctx, current.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("canceling subscription %d: %w", current.ID, err)
		}
	}

	start := time.Now().UTC()
	if err := s.repo.ActivateSubscription(ctx, subID, start, plan.periodEnd(start)); err != nil {
		return fmt.Errorf("activating subscription %d: %w", subID, err)
	}
	return nil
}

// Plans lists the plan catalog.
func (s *Service) Plans(ctx context.Context) ([]Plan, error) {
	return s.repo.ListPlans(ctx)
}

// Transactions lists a tenant's payment history.
func (s *Service) Transactions(ctx context.Context, tenantID int64) ([]Transaction, error) {
	if _, err := s.tenants.Lookup(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, tenantID)
}
