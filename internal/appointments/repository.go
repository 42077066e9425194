package appointments

import (
	"context"
	"sync"
)

// Repository persists completed appointments.
type Repository interface {
	Save(ctx context.Context, appt Appointment) error
	List(ctx context.Context) ([]Appointment, error)
}

// InMemoryRepository keeps appointments in process memory. Used in
// development and tests; the session itself never reads back from it.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items []Appointment
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Save(ctx context.Context, appt Appointment) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, appt)
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context) ([]Appointment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Appointment, len(r.items))
	copy(out, r.items)
	return out, nil
}
