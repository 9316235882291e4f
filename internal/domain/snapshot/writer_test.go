package snapshot

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/domain/requests"
)

func TestPGWriterIsAllOrNothing(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	dirStore, reqStore := directory.NewPGStore(pool), requests.NewPGStore(pool)
	writer := NewPGWriter(pool, dirStore, reqStore)

	now := time.Now().UTC().Truncate(time.Second)
	suffix := now.UnixNano() % 1_000_000_000
	first := directory.Employee{ID: fmt.Sprintf("8%09d", suffix), Name: "First", Role: auth.RoleEmployee,
		Email: fmt.Sprintf("import-%d@test.local", suffix), CreatedAt: now, UpdatedAt: now}
	clash := first
	clash.ID = fmt.Sprintf("7%09d", suffix)
	clash.Email = "IMPORT-" + first.Email[len("import-"):]

	// The second row breaks the unique email index; the first must not survive.
	err = writer.Write(ctx, []directory.Employee{first, clash}, nil)
	require.Error(t, err)
	_, err = dirStore.Get(ctx, first.ID)
	assert.True(t, errors.Is(err, directory.ErrNotFound))

	req := approvedLeave(fmt.Sprintf("import-%d", suffix), first.ID)
	require.NoError(t, writer.Write(ctx, []directory.Employee{first}, []requests.Request{req}))
	defer func() {
		_, _ = pool.Exec(ctx, "DELETE FROM requests WHERE id = $1", req.ID)
		_ = dirStore.Remove(ctx, first.ID)
	}()

	stored, err := reqStore.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, requests.StatusApproved, stored.Status)

	err = writer.Write(ctx, nil, []requests.Request{req})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "existing request ids are refused")
}
