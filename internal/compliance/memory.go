package compliance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the read/write surface exposed to the admin audit endpoint.
type Store interface {
	Recorder
	QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// MemoryStore keeps audit events in process for deployments without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	events []AuditEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LogEvent(_ context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) QueryEvents(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	types := make(map[AuditEventType]bool, len(filter.EventTypes))
	for _, t := range filter.EventTypes {
		types[t] = true
	}

	s.mu.RLock()
	out := []AuditEvent{}
	for _, e := range s.events {
		switch {
		case filter.ActorID != "" && e.ActorID != filter.ActorID:
			continue
		case filter.EntityID != "" && e.EntityID != filter.EntityID:
			continue
		case len(types) > 0 && !types[e.EventType]:
			continue
		case !filter.StartTime.IsZero() && e.CreatedAt.Before(filter.StartTime):
			continue
		case !filter.EndTime.IsZero() && e.CreatedAt.After(filter.EndTime):
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []AuditEvent{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
