package snapshot

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/directory"
	"hradmin/internal/domain/requests"
	"hradmin/internal/domain/workflow"
	"hradmin/internal/platform/lock"
)

// Writer persists a validated import as one unit. It must refuse request ids
// stored after validation ran, while holding each request's lock.
type Writer interface {
	Write(ctx context.Context, employees []directory.Employee, reqs []requests.Request) error
}

// StoreWriter writes through the store interfaces. It is all-or-nothing only
// for stores whose writes cannot fail part way, such as the in-memory ones.
type StoreWriter struct {
	Employees directory.Store
	Requests  requests.Store
	Locker    lock.Locker
}

func (w StoreWriter) Write(ctx context.Context, employees []directory.Employee, reqs []requests.Request) error {
	for _, req := range reqs {
		release, err := w.Locker.Lock(ctx, workflow.RequestLockKey(req.ID))
		if err != nil {
			return errors.Wrapf(err, "acquire lock for request %s", req.ID)
		}
		defer release()

		_, err = w.Requests.Get(ctx, req.ID)
		if err == nil {
			return errRequestExists(req.ID)
		}
		if !errors.Is(err, requests.ErrNotFound) {
			return err
		}
	}

	for _, emp := range employees {
		if err := w.Employees.Put(ctx, emp); err != nil {
			return errors.Wrapf(err, "import employee %s", emp.ID)
		}
	}
	for _, req := range reqs {
		if err := w.Requests.Put(ctx, req); err != nil {
			return errors.Wrapf(err, "import request %s", req.ID)
		}
	}
	return nil
}

// PGWriter imports in a single transaction. Request locks are
// transaction-scoped advisory locks, so the whole batch runs on one
// connection and a failure rolls every row back.
type PGWriter struct {
	DB        *pgxpool.Pool
	Employees *directory.PGStore
	Requests  *requests.PGStore
}

func NewPGWriter(db *pgxpool.Pool, employees *directory.PGStore, reqs *requests.PGStore) *PGWriter {
	return &PGWriter{DB: db, Employees: employees, Requests: reqs}
}

func (w *PGWriter) Write(ctx context.Context, employees []directory.Employee, reqs []requests.Request) error {
	tx, err := w.DB.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin import")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, req := range reqs {
		if err := lock.LockTx(ctx, tx, workflow.RequestLockKey(req.ID)); err != nil {
			return err
		}
		exists, err := w.Requests.ExistsTx(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if exists {
			return errRequestExists(req.ID)
		}
	}

	for _, emp := range employees {
		if err := w.Employees.PutTx(ctx, tx, emp); err != nil {
			return errors.Wrapf(err, "import employee %s", emp.ID)
		}
	}
	for _, req := range reqs {
		if err := w.Requests.PutTx(ctx, tx, req); err != nil {
			return errors.Wrapf(err, "import request %s", req.ID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit import")
	}
	return nil
}
