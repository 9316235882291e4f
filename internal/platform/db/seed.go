package db

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/platform/config"
)

// SeedOwner creates the first owner account when the directory is empty and
// a seed password is configured. It returns the created employee, or false
// when nothing was seeded.
func SeedOwner(ctx context.Context, store directory.Store, cfg config.Config, logger *slog.Logger) (directory.Employee, bool, error) {
	if strings.TrimSpace(cfg.SeedOwnerPassword) == "" {
		return directory.Employee{}, false, nil
	}
	existing, err := store.List(ctx)
	if err != nil {
		return directory.Employee{}, false, err
	}
	if len(existing) > 0 {
		return directory.Employee{}, false, nil
	}

	hash, err := auth.HashPassword(cfg.SeedOwnerPassword)
	if err != nil {
		return directory.Employee{}, false, errors.Wrap(err, "hash seed password")
	}
	now := time.Now().UTC()
	owner := directory.Employee{
		ID:           directory.NextEmployeeID(nil),
		Name:         cfg.SeedOwnerName,
		Email:        cfg.SeedOwnerEmail,
		Position:     "CEO",
		Role:         auth.RoleOwner,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.Put(ctx, owner); err != nil {
		return directory.Employee{}, false, errors.Wrap(err, "seed owner")
	}
	if logger != nil {
		logger.Info("seeded owner account", "employee_id", owner.ID)
	}
	return owner, true, nil
}
