package employeeshandler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/domain/hierarchy"
	"hradmin/internal/platform/lock"
	"hradmin/internal/platform/requestctx"
)

// flakyStore fails reads of one id while leaving the rest of the directory
// usable.
type flakyStore struct {
	*directory.MemoryStore
	failID string
}

func (s flakyStore) Get(ctx context.Context, id string) (directory.Employee, error) {
	if id == s.failID {
		return directory.Employee{}, errors.New("connection reset")
	}
	return s.MemoryStore.Get(ctx, id)
}

type recorded struct {
	events []audit.Event
}

func (r *recorded) Record(_ context.Context, evt audit.Event, _, _ any) error {
	r.events = append(r.events, evt)
	return nil
}

func newFlakyRouter(failID string) (http.Handler, *directory.MemoryStore, *recorded) {
	mem := directory.NewMemoryStore(
		directory.Employee{ID: "10001", Name: "Owner", Role: auth.RoleOwner},
		directory.Employee{ID: "10002", Name: "Staff", ManagerID: "10001", Role: auth.RoleEmployee},
	)
	store := flakyStore{MemoryStore: mem, failID: failID}
	svc := hierarchy.NewService(store, lock.NewLocal(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := &recorded{}
	h := NewHandler(store, svc, rec, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestctx.WithActor(req.Context(), auth.Actor{EmployeeID: "10001", Role: auth.RoleOwner})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.RegisterRoutes(r)
	return r, mem, rec
}

func TestMutationsFailWhenPriorStateCannotBeLoaded(t *testing.T) {
	cases := []struct {
		method, path, body string
	}{
		{http.MethodDelete, "/employees/10002", ""},
		{http.MethodPut, "/employees/10002/manager", `{"managerId":""}`},
		{http.MethodPut, "/employees/10002/role", `{"role":"department_manager"}`},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			router, mem, rec := newFlakyRouter("10002")
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			assert.Equal(t, http.StatusInternalServerError, resp.Code)
			assert.Empty(t, rec.events)

			staff, err := mem.Get(context.Background(), "10002")
			require.NoError(t, err)
			assert.Equal(t, "10001", staff.ManagerID)
			assert.Equal(t, auth.RoleEmployee, staff.Role)
		})
	}
}

func TestDeleteMissingEmployeeReportsNotFound(t *testing.T) {
	router, _, rec := newFlakyRouter("")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/employees/99999", nil))

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Empty(t, rec.events)
}

func TestDeleteAuditsPriorState(t *testing.T) {
	router, mem, rec := newFlakyRouter("")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/employees/10002", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.ActionEmployeeDelete, rec.events[0].Action)

	_, err := mem.Get(context.Background(), "10002")
	assert.True(t, errors.Is(err, directory.ErrNotFound))
}
