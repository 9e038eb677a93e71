package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinicdesk/internal/access"
)

// Repository defines the interface for account storage. Implementations
// enforce case-insensitive email uniqueness atomically.
type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*Account, error)
	Update(ctx context.Context, account *Account) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*Account, int, error)
	CountByRole(ctx context.Context, role access.Role) (int, error)
}

// InMemoryRepository keeps accounts in process.
type InMemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

// Create inserts the account, failing with ErrEmailTaken on a duplicate email.
func (r *InMemoryRepository) Create(ctx context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[account.Email]; exists {
		return ErrEmailTaken
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	stored := *account
	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = stored.ID
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := *account
	return &out, nil
}

func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *InMemoryRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Account, len(ids))
	for _, id := range ids {
		if account, ok := r.byID[id]; ok {
			cp := *account
			out[id] = &cp
		}
	}
	return out, nil
}

// Update persists the mutable fields (role, active flag).
func (r *InMemoryRepository) Update(ctx context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[account.ID]
	if !ok {
		return ErrAccountNotFound
	}
	existing.Role = account.Role
	existing.IsActive = account.IsActive
	return nil
}

// Delete removes an account and frees its email.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	delete(r.byEmail, existing.Email)
	delete(r.byID, id)
	return nil
}

// List returns one page of matching accounts, newest first, and the total match count.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Account, int, error) {
	r.mu.RLock()
	matched := make([]*Account, 0, len(r.byID))
	for _, account := range r.byID {
		if filter.Match(account) {
			cp := *account
			matched = append(matched, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start, end := filter.Page.Window(len(matched))
	return matched[start:end], len(matched), nil
}

// CountByRole counts active accounts holding role.
func (r *InMemoryRepository) CountByRole(ctx context.Context, role access.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, account := range r.byID {
		if account.Role == role && account.IsActive {
			n++
		}
	}
	return n, nil
}
