package requests

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("request not found")

// Store is the collaborator owning the request collection. Requests are
// never removed.
type Store interface {
	List(ctx context.Context) ([]Request, error)
	// Get returns ErrNotFound when id is absent.
	Get(ctx context.Context, id string) (Request, error)
	Put(ctx context.Context, req Request) error
}
