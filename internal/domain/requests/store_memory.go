package requests

import (
	"context"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]Request
}

func NewMemoryStore(seed ...Request) *MemoryStore {
	s := &MemoryStore{requests: make(map[string]Request, len(seed))}
	for _, req := range seed {
		s.requests[req.ID] = req.Clone()
	}
	return s
}

// List returns every request, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Request, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req.Clone())
	}
	s.mu.RUnlock()
	SortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Request, error) {
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.requests[req.ID] = req.Clone()
	s.mu.Unlock()
	return nil
}

// SortNewestFirst orders by creation time descending, then id.
func SortNewestFirst(reqs []Request) {
	sort.SliceStable(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
}
