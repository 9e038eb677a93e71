package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for appointment storage.
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*Appointment, error)
	// UpdateStatus moves id from one status to another only if the stored
	// status still equals from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Appointment, error)
	Delete(ctx context.Context, id string) error
	// List returns one page ordered by scheduled time, latest first, and the
	// total match count.
	List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
	DistinctPatientIDs(ctx context.Context, doctorID string) ([]string, error)
}

// InMemoryRepository keeps appointments in process.
type InMemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*Appointment
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byID: make(map[string]*Appointment)}
}

func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = appt.CreatedAt
	stored := *appt
	r.byID[stored.ID] = &stored
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appt, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *appt
	return &out, nil
}

func (r *InMemoryRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Appointment, len(ids))
	for _, id := range ids {
		if appt, ok := r.byID[id]; ok {
			cp := *appt
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != from {
		return nil, ErrStatusChanged
	}
	appt.Status = to
	appt.UpdatedAt = time.Now().UTC()
	out := *appt
	return &out, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	matched := r.matching(filter)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.ScheduledAt.Equal(b.ScheduledAt) {
			if a.CreatedAt.Equal(b.CreatedAt) {
				return a.ID > b.ID
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ScheduledAt.After(b.ScheduledAt)
	})

	start, end := filter.Page.Normalize().Window(len(matched))
	return matched[start:end], len(matched), nil
}

func (r *InMemoryRepository) Count(ctx context.Context, filter ListFilter) (int, error) {
	return len(r.matching(filter)), nil
}

func (r *InMemoryRepository) DistinctPatientIDs(ctx context.Context, doctorID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	ids := []string{}
	for _, appt := range r.byID {
		if appt.DoctorAccountID != doctorID {
			continue
		}
		if _, dup := seen[appt.PatientRecordID]; dup {
			continue
		}
		seen[appt.PatientRecordID] = struct{}{}
		ids = append(ids, appt.PatientRecordID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *InMemoryRepository) matching(filter ListFilter) []*Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*Appointment, 0, len(r.byID))
	for _, appt := range r.byID {
		if filter.Match(appt) {
			cp := *appt
			matched = append(matched, &cp)
		}
	}
	return matched
}
