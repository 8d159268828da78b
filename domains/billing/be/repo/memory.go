package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abdulquadri-hub/niceblog/domains/billing/be/gateway"
	"github.com/Abdulquadri-hub/niceblog/domains/billing/be/service"
)

// MemoryRepository is an in-memory billing repository for tests.
type MemoryRepository struct {
	mu sync.RWMutex

	nextTxnID  int64
	nextSubID  int64
	nextPlanID int64

	transactions  map[int64]service.Transaction
	subscriptions map[int64]service.Subscription
	plans         map[int64]service.Plan

	now func() time.Time
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextTxnID:     1,
		nextSubID:     1,
		nextPlanID:    1,
		transactions:  make(map[int64]service.Transaction),
		subscriptions: make(map[int64]service.Subscription),
		plans:         make(map[int64]service.Plan),
		now:           time.Now,
	}
}

// AddPlan registers a plan, used by tests to seed the catalog.
func (r *MemoryRepository) AddPlan(p service.Plan) service.Plan {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.nextPlanID
		r.nextPlanID++
	}
	p.CreatedAt = r.now()
	r.plans[p.ID] = p
	return p
}

func (r *MemoryRepository) CreateTransaction(_ context.Context, t service.Transaction) (service.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.nextTxnID
	r.nextTxnID++
	t.CreatedAt = r.now()
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
	r.transactions[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) GetTransactionByReference(_ context.Context, reference string) (service.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.Reference == reference {
			return t, nil
		}
	}
	return service.Transaction{}, service.ErrTransactionNotFound
}

func (r *MemoryRepository) UpdateTransactionStatus(_ context.Context, reference string, status gateway.Status, gatewayTransactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.transactions {
		if t.Reference != reference {
			continue
		}
		t.Status = status
		if gatewayTransactionID != "" {
			t.GatewayTransactionID = &gatewayTransactionID
		}
		switch status {
		case gateway.StatusCompleted, gateway.StatusFailed, gateway.StatusCancelled, gateway.StatusRefunded:
			now := r.now()
			t.ProcessedAt = &now
		}
		r.transactions[id] = t
		return nil
	}
	return service.ErrTransactionNotFound
}

func (r *MemoryRepository) ListTransactions(_ context.Context, tenantID int64) ([]service.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []service.Transaction
	for _, t := range r.transactions {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryRepository) GetPlan(_ context.Context, id int64) (service.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	if !ok {
		return service.Plan{}, service.ErrPlanNotFound
	}
	return p, nil
}

func (r *MemoryRepository) ListPlans(_ context.Context) ([]service.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []service.Plan
	for _, p := range r.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (r *MemoryRepository) CreateSubscription(_ context.Context, s service.Subscription) (service.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.nextSubID
	r.nextSubID++
	s.CreatedAt = r.now()
	r.subscriptions[s.ID] = s
	return s, nil
}

func (r *MemoryRepository) CurrentSubscription(_ context.Context, tenantID int64) (service.Subscription, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		best  service.Subscription
		found bool
	)
	now := r.now()
	for _, s := range r.subscriptions {
		if s.TenantID != tenantID || s.Status != service.SubscriptionActive {
			continue
		}
		if s.CurrentPeriodEnd == nil || !s.CurrentPeriodEnd.After(now) {
			continue
		}
		if !found || s.CurrentPeriodEnd.After(*best.CurrentPeriodEnd) {
			best = s
			found = true
		}
	}
	return best, found, nil
}

func (r *MemoryRepository) ActivateSubscription(_ context.Context, id int64, periodStart, periodEnd time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscriptions[id]
	if !ok {
		return service.ErrTransactionNotFound
	}
	s.Status = service.SubscriptionActive
	s.CurrentPeriodStart = &periodStart
	s.CurrentPeriodEnd = &periodEnd
	r.subscriptions[id] = s
	return nil
}

func (r *MemoryRepository) CancelSubscription(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscriptions[id]
	if !ok {
		return service.ErrTransactionNotFound
	}
	s.Status = service.SubscriptionCanceled
	s.CanceledAt = &at
	r.subscriptions[id] = s
	return nil
}

// SubscriptionCount reports how many subscription rows exist, used by tests.
func (r *MemoryRepository) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions)
}

// Subscription returns a subscription by id, used by tests.
func (r *MemoryRepository) Subscription(id int64) (service.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subscriptions[id]
	return s, ok
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
