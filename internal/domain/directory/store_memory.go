package directory

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu        sync.RWMutex
	employees map[string]Employee
}

func NewMemoryStore(seed ...Employee) *MemoryStore {
	s := &MemoryStore{employees: make(map[string]Employee, len(seed))}
	for _, emp := range seed {
		s.employees[emp.ID] = emp
	}
	return s
}

func (s *MemoryStore) List(ctx context.Context) ([]Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Employee, 0, len(s.employees))
	for _, emp := range s.employees {
		out = append(out, emp)
	}
	s.mu.RUnlock()
	SortByID(out)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Employee, error) {
	if err := ctx.Err(); err != nil {
		return Employee{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	emp, ok := s.employees[id]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return emp, nil
}

func (s *MemoryStore) Put(ctx context.Context, emp Employee) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.employees[emp.ID] = emp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.employees[id]; !ok {
		return ErrNotFound
	}
	delete(s.employees, id)
	return nil
}
