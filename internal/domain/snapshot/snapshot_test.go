package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/domain/requests"
	"hradmin/internal/domain/workflow"
	"hradmin/internal/platform/lock"
)

var (
	exportedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	operator   = auth.Actor{Role: auth.RoleOwner}
)

func newService(employees ...directory.Employee) *Service {
	svc := NewService(directory.NewMemoryStore(employees...), requests.NewMemoryStore(), lock.NewLocal(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.Now = func() time.Time { return exportedAt }
	return svc
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := newService(
		directory.Employee{ID: "10001", Name: "Owner", Role: auth.RoleOwner, PasswordHash: "hash-1", CreatedAt: exportedAt, UpdatedAt: exportedAt},
		directory.Employee{ID: "10002", Name: "Staff", ManagerID: "10001", Role: auth.RoleEmployee, CreatedAt: exportedAt, UpdatedAt: exportedAt},
		directory.Employee{ID: "10003", Name: "HR", ManagerID: "10001", Role: auth.RoleAdmin, CreatedAt: exportedAt, UpdatedAt: exportedAt},
	)
	require.NoError(t, source.Requests.Put(ctx, approvedLeave("r-0", "10002")))
	require.NoError(t, source.Requests.Put(ctx, requests.Request{
		ID:        "r-1",
		UserID:    "10002",
		Type:      requests.TypeClearance,
		Status:    requests.StatusPendingManager,
		Details:   requests.ClearanceDetails{LastWorkingDay: "2026-06-30"},
		CreatedAt: exportedAt,
		UpdatedAt: exportedAt,
	}))

	var buf bytes.Buffer
	res, err := source.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, Result{Employees: 3, Requests: 2}, res)
	assert.Contains(t, buf.String(), `"`+EmployeesKey+`"`)
	assert.Contains(t, buf.String(), `"`+RequestsKey+`"`)

	doc, err := Decode(&buf)
	require.NoError(t, err)

	target := newService()
	res, err = target.Import(ctx, operator, doc)
	require.NoError(t, err)
	assert.Equal(t, Result{Employees: 3, Requests: 2}, res)

	owner, err := target.Employees.Get(ctx, "10001")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", owner.PasswordHash)

	req, err := target.Requests.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, requests.ClearanceDetails{LastWorkingDay: "2026-06-30"}, req.Details)

	approved, err := target.Requests.Get(ctx, "r-0")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusApproved, approved.Status)
	assert.Len(t, approved.History, 3)
}

// approvedLeave walks a leave request for userID through the whole chain:
// owner 10001 clears the first two stages and admin 10003 the last.
func approvedLeave(id, userID string) requests.Request {
	step := func(from, to requests.Status, actor string) requests.Transition {
		return requests.Transition{From: from, To: to, ActorID: actor, At: exportedAt}
	}
	return requests.Request{
		ID:         id,
		UserID:     userID,
		Type:       requests.TypeLeave,
		Status:     requests.StatusApproved,
		Details:    requests.LeaveDetails{LeaveType: "annual", StartDate: "2026-01-01", EndDate: "2026-01-02"},
		ApproverID: "10003",
		CreatedAt:  exportedAt,
		UpdatedAt:  exportedAt,
		History: []requests.Transition{
			step(requests.StatusPendingManager, requests.StatusPendingGM, "10001"),
			step(requests.StatusPendingGM, requests.StatusPendingHR, "10001"),
			step(requests.StatusPendingHR, requests.StatusApproved, "10003"),
		},
	}
}

func TestImportRejectsCycleWithoutWriting(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	doc, err := Decode(strings.NewReader(`{
  "exportedAt": "2026-03-01T12:00:00Z",
  "hr_employees_v1": [
    {"id": "10001", "name": "A", "managerId": "10002", "role": "owner"},
    {"id": "10002", "name": "B", "managerId": "10001", "role": "employee"}
  ],
  "hr_requests_v1": []
}`))
	require.NoError(t, err)

	_, err = svc.Import(ctx, operator, doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	all, err := svc.Employees.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImportChecksMergedDirectory(t *testing.T) {
	ctx := context.Background()
	svc := newService(
		directory.Employee{ID: "10001", Name: "Owner", Role: auth.RoleOwner},
		directory.Employee{ID: "10002", Name: "Lead", ManagerID: "10001", Role: auth.RoleDepartmentManager},
	)
	// Valid on its own, but re-parents the existing root under its own report.
	doc := Document{Employees: []EmployeeRecord{
		{Employee: directory.Employee{ID: "10001", Name: "Owner", ManagerID: "10002", Role: auth.RoleOwner}},
	}}
	_, err := svc.Import(ctx, operator, doc)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	owner, err := svc.Employees.Get(ctx, "10001")
	require.NoError(t, err)
	assert.Empty(t, owner.ManagerID)
}

func TestImportRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	svc := newService(directory.Employee{ID: "10001", Name: "Owner", Role: auth.RoleOwner})
	doc := Document{Requests: []requests.Request{
		{ID: "r-1", UserID: "ghost", Type: requests.TypeLeave, Status: requests.StatusPendingManager,
			Details: requests.LeaveDetails{LeaveType: "annual", StartDate: "2026-01-01", EndDate: "2026-01-02"}},
		{ID: "r-1", UserID: "10001", Type: requests.TypeLoan, Status: requests.StatusPendingManager,
			Details: requests.LoanDetails{}},
	}}

	_, err := svc.Import(ctx, operator, doc)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Len(t, appErr.Fields, 3)

	all, err := svc.Requests.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDecodeRejectsUnknownCollections(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"hr_employees_v2": []}`))
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func staffedService() *Service {
	return newService(
		directory.Employee{ID: "10001", Name: "Owner", Role: auth.RoleOwner},
		directory.Employee{ID: "10002", Name: "Staff", ManagerID: "10001", Role: auth.RoleEmployee},
		directory.Employee{ID: "10003", Name: "HR", ManagerID: "10001", Role: auth.RoleAdmin},
	)
}

func listEmployees(t *testing.T, svc *Service) []directory.Employee {
	t.Helper()
	all, err := svc.Employees.List(context.Background())
	require.NoError(t, err)
	return all
}

func TestImportAppliesRoleAssignmentRules(t *testing.T) {
	ctx := context.Background()
	admin := auth.Actor{EmployeeID: "10003", Role: auth.RoleAdmin}
	record := func(id, managerID string, role auth.Role) EmployeeRecord {
		return EmployeeRecord{Employee: directory.Employee{ID: id, Name: "Employee " + id, ManagerID: managerID, Role: role}}
	}

	forbidden := map[string]EmployeeRecord{
		"self promotion":      record("10003", "10001", auth.RoleOwner),
		"demote owner":        record("10001", "", auth.RoleEmployee),
		"re-parent owner":     record("10001", "10002", auth.RoleOwner),
		"create owner":        record("10009", "", auth.RoleOwner),
		"grant owner to peer": record("10002", "10001", auth.RoleOwner),
	}
	for name, rec := range forbidden {
		t.Run(name, func(t *testing.T) {
			svc := staffedService()
			_, err := svc.Import(ctx, admin, Document{Employees: []EmployeeRecord{rec}})
			assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)

			assert.Equal(t, listEmployees(t, staffedService()), listEmployees(t, svc))
		})
	}

	svc := staffedService()
	_, err := svc.Import(ctx, auth.Actor{EmployeeID: "10002", Role: auth.RoleEmployee},
		Document{Employees: []EmployeeRecord{record("10002", "10001", auth.RoleEmployee)}})
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "no employee management")

	_, err = svc.Import(ctx, admin, Document{Employees: []EmployeeRecord{record("10002", "10003", auth.RoleDepartmentManager)}})
	require.NoError(t, err)
	promoted, err := svc.Employees.Get(ctx, "10002")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleDepartmentManager, promoted.Role)
	assert.Equal(t, "10003", promoted.ManagerID)
}

func TestImportOnlyAddsRequests(t *testing.T) {
	ctx := context.Background()
	svc := staffedService()
	rejected := approvedLeave("r-1", "10002")
	rejected.Status = requests.StatusRejected
	rejected.ApproverID = "10001"
	rejected.History = []requests.Transition{
		{From: requests.StatusPendingManager, To: requests.StatusRejected, ActorID: "10001", At: exportedAt},
	}
	require.NoError(t, svc.Requests.Put(ctx, rejected))

	reopened := rejected
	reopened.Status = requests.StatusPendingManager
	reopened.ApproverID = ""
	reopened.History = nil
	_, err := svc.Import(ctx, operator, Document{Requests: []requests.Request{reopened}})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, RequestsKey+"[0].id", appErr.Fields[0].Field)

	stored, err := svc.Requests.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, requests.StatusRejected, stored.Status)
}

func TestImportReplaysRequestHistory(t *testing.T) {
	ctx := context.Background()

	noHistory := approvedLeave("r-1", "10002")
	noHistory.History = nil

	selfApproved := approvedLeave("r-2", "10001")
	selfApproved.Status = requests.StatusPendingGM
	selfApproved.ApproverID = "10001"
	selfApproved.History = selfApproved.History[:1]

	wrongApprover := approvedLeave("r-3", "10002")
	wrongApprover.ApproverID = "10002"

	for name, req := range map[string]requests.Request{
		"approved without history": noHistory,
		"self approval":            selfApproved,
		"approver mismatch":        wrongApprover,
	} {
		t.Run(name, func(t *testing.T) {
			svc := staffedService()
			_, err := svc.Import(ctx, operator, Document{Requests: []requests.Request{req}})
			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			require.Len(t, appErr.Fields, 1)
			assert.Equal(t, RequestsKey+"[0].history", appErr.Fields[0].Field)

			all, err := svc.Requests.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}

	svc := staffedService()
	res, err := svc.Import(ctx, operator, Document{Requests: []requests.Request{approvedLeave("r-4", "10002")}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Requests)
}

func TestImportMergesWithCurrentDirectory(t *testing.T) {
	ctx := context.Background()
	svc := staffedService()
	doc := Document{Employees: []EmployeeRecord{
		{Employee: directory.Employee{ID: "10004", Name: "New Hire", ManagerID: "10003", Role: auth.RoleEmployee}},
	}}

	res, err := svc.Import(ctx, operator, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Employees)

	hire, err := svc.Employees.Get(ctx, "10004")
	require.NoError(t, err)
	assert.Equal(t, "10003", hire.ManagerID)
	assert.Equal(t, exportedAt, hire.CreatedAt)
}

func TestImportRejectsDuplicateEmployees(t *testing.T) {
	svc := staffedService()
	doc := Document{Employees: []EmployeeRecord{
		{Employee: directory.Employee{ID: "10004", Name: "A", ManagerID: "10001", Role: auth.RoleEmployee}},
		{Employee: directory.Employee{ID: "10004", Name: "B", ManagerID: "10001", Role: auth.RoleEmployee}},
	}}
	_, err := svc.Import(context.Background(), operator, doc)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Len(t, listEmployees(t, svc), 3)
}

func TestStoreWriterHoldsRequestLocks(t *testing.T) {
	ctx := context.Background()
	svc := staffedService()
	writer := svc.Writer.(StoreWriter)

	release, err := svc.Locker.Lock(ctx, workflow.RequestLockKey("r-9"))
	require.NoError(t, err)
	busy, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = writer.Write(busy, nil, []requests.Request{approvedLeave("r-9", "10002")})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	release()

	require.NoError(t, svc.Requests.Put(ctx, approvedLeave("r-9", "10002")))
	late := directory.Employee{ID: "10005", Name: "Late", ManagerID: "10001", Role: auth.RoleEmployee}
	err = writer.Write(ctx, []directory.Employee{late}, []requests.Request{approvedLeave("r-9", "10002")})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "request stored after validation")
	assert.Len(t, listEmployees(t, svc), 3)
}
