package directory

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("employee not found")

// Store is the collaborator owning the employee collection.
type Store interface {
	List(ctx context.Context) ([]Employee, error)
	// Get returns ErrNotFound when id is absent.
	Get(ctx context.Context, id string) (Employee, error)
	Put(ctx context.Context, emp Employee) error
	Remove(ctx context.Context, id string) error
}
