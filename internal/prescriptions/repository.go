package prescriptions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for prescription storage. Create must
// reject a second prescription for the same appointment atomically.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id string) (*Prescription, error)
	GetByAppointmentID(ctx context.Context, appointmentID string) (*Prescription, error)
	// List returns one page, newest first, and the total match count.
	List(ctx context.Context, filter ListFilter) ([]*Prescription, int, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
}

// InMemoryRepository keeps prescriptions in process. The appointment index
// is checked and written under the same lock.
type InMemoryRepository struct {
	mu            sync.RWMutex
	byID          map[string]*Prescription
	byAppointment map[string]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:          make(map[string]*Prescription),
		byAppointment: make(map[string]string),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, p *Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byAppointment[p.AppointmentID]; exists {
		return ErrAppointmentPrescribed
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	stored := clone(p)
	r.byID[stored.ID] = stored
	r.byAppointment[stored.AppointmentID] = stored.ID
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	return clone(p), nil
}

func (r *InMemoryRepository) GetByAppointmentID(ctx context.Context, appointmentID string) (*Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAppointment[appointmentID]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Prescription, int, error) {
	matched := r.matching(filter)
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	start, end := filter.Page.Window(len(matched))
	return matched[start:end], len(matched), nil
}

func (r *InMemoryRepository) Count(ctx context.Context, filter ListFilter) (int, error) {
	return len(r.matching(filter)), nil
}

func (r *InMemoryRepository) matching(filter ListFilter) []*Prescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*Prescription, 0, len(r.byID))
	for _, p := range r.byID {
		if filter.Match(p) {
			matched = append(matched, clone(p))
		}
	}
	return matched
}

func clone(p *Prescription) *Prescription {
	cp := *p
	cp.Medicines = append([]Medicine(nil), p.Medicines...)
	return &cp
}
