package patients

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for patient record storage. Create must
// reject a second record for the same account atomically.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByAccountID(ctx context.Context, accountID string) (*Record, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*Record, error)
	Update(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter ListFilter) ([]*Record, int, error)
	// Count counts records created in [from, to). Zero bounds are open.
	Count(ctx context.Context, from, to time.Time) (int, error)
}

// InMemoryRepository keeps patient records in process.
type InMemoryRepository struct {
	mu        sync.RWMutex
	records   map[string]*Record
	byAccount map[string]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records:   make(map[string]*Record),
		byAccount: make(map[string]string),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.AccountID != nil {
		if _, taken := r.byAccount[*rec.AccountID]; taken {
			return ErrAccountAlreadyLinked
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt

	stored := cloneRecord(rec)
	r.records[stored.ID] = stored
	if stored.AccountID != nil {
		r.byAccount[*stored.AccountID] = stored.ID
	}
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

func (r *InMemoryRepository) GetByAccountID(ctx context.Context, accountID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAccount[accountID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(r.records[id]), nil
}

func (r *InMemoryRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Record, len(ids))
	for _, id := range ids {
		if rec, ok := r.records[id]; ok {
			out[id] = cloneRecord(rec)
		}
	}
	return out, nil
}

// Update persists the profile fields. The account link is immutable here.
func (r *InMemoryRepository) Update(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[rec.ID]
	if !ok {
		return ErrRecordNotFound
	}
	existing.Name = rec.Name
	existing.Age = rec.Age
	existing.Gender = rec.Gender
	existing.Contact = rec.Contact
	existing.UpdatedAt = time.Now().UTC()
	rec.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Record, int, error) {
	r.mu.RLock()
	matched := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Match(rec) {
			matched = append(matched, cloneRecord(rec))
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

func (r *InMemoryRepository) Count(ctx context.Context, from, to time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if !from.IsZero() && rec.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !rec.CreatedAt.Before(to) {
			continue
		}
		n++
	}
	return n, nil
}

func cloneRecord(rec *Record) *Record {
	out := *rec
	if rec.Age != nil {
		age := *rec.Age
		out.Age = &age
	}
	if rec.Gender != nil {
		g := *rec.Gender
		out.Gender = &g
	}
	if rec.AccountID != nil {
		id := *rec.AccountID
		out.AccountID = &id
	}
	return &out
}
