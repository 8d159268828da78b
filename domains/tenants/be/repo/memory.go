package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
)

// MemoryRepository is an in-memory tenant repository for tests and local
// wiring without Postgres.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]service.Tenant
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, items: make(map[int64]service.Tenant)}
}

func (r *MemoryRepository) Create(_ context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.Slug == t.Slug {
			return service.Tenant{}, service.ErrConflictSlug
		}
		if strings.EqualFold(existing.Email, t.Email) {
			return service.Tenant{}, service.ErrConflictEmail
		}
	}

	t.ID = r.nextID
	r.nextID++
	r.items[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) FindBySlug(_ context.Context, slug string) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.items {
		if t.Slug == slug {
			return t, nil
		}
	}
	return service.Tenant{}, service.ErrNotFound
}

func (r *MemoryRepository) SlugExists(_ context.Context, slug string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.items {
		if t.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.items {
		if strings.EqualFold(t.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) List(_ context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}

	all := make([]service.Tenant, 0, len(r.items))
	for _, t := range r.items {
		if opts.Status != nil && t.Status != *opts.Status {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	totalPages := (total + size - 1) / size
	return service.ListResult{
		Tenants:    all[start:end],
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id int64, status service.Status, step, setupErr *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[id]
	if !ok {
		return service.ErrNotFound
	}
	t.Status = status
	t.SetupStep = step
	t.SetupError = setupErr
	if status == service.StatusActive {
		now := time.Now().UTC()
		t.SetupCompletedAt = &now
	} else {
		t.SetupCompletedAt = nil
	}
	t.UpdatedAt = time.Now().UTC()
	r.items[id] = t
	return nil
}

func (r *MemoryRepository) SetOwnerUser(_ context.Context, id int64, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[id]
	if !ok {
		return service.ErrNotFound
	}
	t.UserID = &userID
	t.UpdatedAt = time.Now().UTC()
	r.items[id] = t
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return service.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
