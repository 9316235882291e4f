// Package snapshot moves the employee and request collections in and out of
// the service as a single JSON document.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-faster/errors"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/domain/hierarchy"
	"hradmin/internal/domain/requests"
	"hradmin/internal/domain/workflow"
	"hradmin/internal/platform/lock"
)

// Collection keys carry the schema version of their records.
const (
	EmployeesKey = "hr_employees_v1"
	RequestsKey  = "hr_requests_v1"
)

type Document struct {
	ExportedAt time.Time          `json:"exportedAt"`
	Employees  []EmployeeRecord   `json:"hr_employees_v1"`
	Requests   []requests.Request `json:"hr_requests_v1"`
}

// EmployeeRecord keeps the password hash that the API representation hides,
// so an export can be restored without resetting credentials.
type EmployeeRecord struct {
	directory.Employee
	PasswordHash string `json:"passwordHash,omitempty"`
}

type Result struct {
	Employees int `json:"employees"`
	Requests  int `json:"requests"`
}

type Service struct {
	Employees directory.Store
	Requests  requests.Store
	Locker    lock.Locker
	Writer    Writer
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewService(employees directory.Store, reqs requests.Store, locker lock.Locker, logger *slog.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Employees: employees,
		Requests:  reqs,
		Locker:    locker,
		Writer:    StoreWriter{Employees: employees, Requests: reqs, Locker: locker},
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Export(ctx context.Context, w io.Writer) (Result, error) {
	employees, err := s.Employees.List(ctx)
	if err != nil {
		return Result{}, err
	}
	reqs, err := s.Requests.List(ctx)
	if err != nil {
		return Result{}, err
	}

	doc := Document{
		ExportedAt: s.Now(),
		Employees:  make([]EmployeeRecord, 0, len(employees)),
		Requests:   reqs,
	}
	if doc.Requests == nil {
		doc.Requests = []requests.Request{}
	}
	for _, emp := range employees {
		doc.Employees = append(doc.Employees, EmployeeRecord{Employee: emp, PasswordHash: emp.PasswordHash})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return Result{}, errors.Wrap(err, "encode snapshot")
	}
	return Result{Employees: len(doc.Employees), Requests: len(doc.Requests)}, nil
}

func Decode(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, apperr.Validation("invalid snapshot", apperr.FieldIssue{Field: "", Reason: err.Error()})
	}
	return doc, nil
}

// Import merges doc into the stores on behalf of actor. Imported employees
// replace existing ones with the same id under the same role-assignment
// rules as ChangeRole; requests are only ever added. The merged directory
// and every request history are validated before anything is written.
func (s *Service) Import(ctx context.Context, actor auth.Actor, doc Document) (Result, error) {
	release, err := s.Locker.Lock(ctx, hierarchy.DirectoryLockKey)
	if err != nil {
		return Result{}, errors.Wrap(err, "acquire directory lock")
	}
	defer release()

	existing, err := s.Employees.List(ctx)
	if err != nil {
		return Result{}, err
	}
	merged := make(map[string]directory.Employee, len(existing)+len(doc.Employees))
	for _, emp := range existing {
		merged[emp.ID] = emp
	}

	imported := make([]directory.Employee, 0, len(doc.Employees))
	for _, rec := range doc.Employees {
		emp := rec.Employee
		emp.PasswordHash = rec.PasswordHash
		imported = append(imported, emp)
	}
	if err := authorizeEmployees(actor, merged, imported); err != nil {
		return Result{}, s.reject(actor, err)
	}
	if err := checkDuplicates(imported); err != nil {
		return Result{}, s.reject(actor, err)
	}

	for _, emp := range imported {
		merged[emp.ID] = emp
	}
	all := make([]directory.Employee, 0, len(merged))
	for _, emp := range merged {
		all = append(all, emp)
	}
	if err := hierarchy.CheckIntegrity(all); err != nil {
		return Result{}, s.reject(actor, err)
	}
	if err := s.checkRequests(ctx, doc.Requests, merged); err != nil {
		return Result{}, s.reject(actor, err)
	}

	now := s.Now()
	for i := range imported {
		if imported[i].CreatedAt.IsZero() {
			imported[i].CreatedAt = now
		}
		if imported[i].UpdatedAt.IsZero() {
			imported[i].UpdatedAt = imported[i].CreatedAt
		}
	}
	if err := s.Writer.Write(ctx, imported, doc.Requests); err != nil {
		return Result{}, s.reject(actor, err)
	}

	s.Logger.Info("snapshot imported",
		"employees", len(imported),
		"requests", len(doc.Requests),
		"actor_id", actor.EmployeeID,
	)
	return Result{Employees: len(imported), Requests: len(doc.Requests)}, nil
}

func (s *Service) reject(actor auth.Actor, err error) error {
	if kind := apperr.KindOf(err); kind != "" {
		s.Logger.Warn("snapshot import rejected", "actor_id", actor.EmployeeID, "kind", kind, "error", err.Error())
	}
	return err
}

// authorizeEmployees applies the role-assignment rule to every record an
// import adds or replaces. A replaced record must be one the actor could
// manage, and a new or changed role one the actor could grant.
func authorizeEmployees(actor auth.Actor, current map[string]directory.Employee, imported []directory.Employee) error {
	set := actor.Permissions()
	for _, emp := range imported {
		prev, replacing := current[emp.ID]
		if replacing && !auth.CanAssignRole(set, prev.Role) {
			return apperr.Forbidden(fmt.Sprintf("not allowed to replace employee %s", emp.ID))
		}
		if replacing && prev.Role == emp.Role {
			continue
		}
		if replacing && emp.ID == actor.EmployeeID {
			return apperr.Forbidden("cannot change your own role")
		}
		if !auth.CanAssignRole(set, emp.Role) {
			return apperr.Forbidden(fmt.Sprintf("not allowed to assign role %s to employee %s", emp.Role, emp.ID))
		}
	}
	return nil
}

// checkDuplicates catches repeated ids, which the merge would otherwise
// collapse silently. Everything else is checked on the merged directory.
func checkDuplicates(imported []directory.Employee) error {
	var issues []apperr.FieldIssue
	seen := make(map[string]bool, len(imported))
	for i, emp := range imported {
		if emp.ID != "" && seen[emp.ID] {
			issues = append(issues, apperr.FieldIssue{
				Field:  fmt.Sprintf("%s[%d].id", EmployeesKey, i),
				Reason: "duplicate id " + emp.ID,
			})
		}
		seen[emp.ID] = true
	}
	if len(issues) > 0 {
		return apperr.Validation("snapshot employees failed validation", issues...)
	}
	return nil
}

func (s *Service) checkRequests(ctx context.Context, reqs []requests.Request, employees map[string]directory.Employee) error {
	actors := make(map[string]auth.Actor, len(employees))
	for id, emp := range employees {
		actors[id] = emp.Actor()
	}

	var issues []apperr.FieldIssue
	seen := make(map[string]bool, len(reqs))
	for i, req := range reqs {
		field := fmt.Sprintf("%s[%d]", RequestsKey, i)
		switch {
		case req.ID == "":
			issues = append(issues, apperr.FieldIssue{Field: field + ".id", Reason: "is required"})
		case seen[req.ID]:
			issues = append(issues, apperr.FieldIssue{Field: field + ".id", Reason: "duplicate id " + req.ID})
		default:
			_, err := s.Requests.Get(ctx, req.ID)
			switch {
			case err == nil:
				issues = append(issues, existingRequestIssue(field, req.ID))
			case !errors.Is(err, requests.ErrNotFound):
				return err
			}
		}
		seen[req.ID] = true
		if _, ok := employees[req.UserID]; !ok {
			issues = append(issues, apperr.FieldIssue{Field: field + ".userId", Reason: "unknown employee " + req.UserID})
		}
		if err := requests.ValidateDetails(req.Type, req.Details); err != nil {
			issues = append(issues, apperr.FieldIssue{Field: field + ".details", Reason: err.Error()})
		}
		if err := workflow.VerifyHistory(req, actors); err != nil {
			issues = append(issues, apperr.FieldIssue{Field: field + ".history", Reason: err.Error()})
		}
	}
	if len(issues) > 0 {
		return apperr.Validation("snapshot requests failed validation", issues...)
	}
	return nil
}

func existingRequestIssue(field, id string) apperr.FieldIssue {
	return apperr.FieldIssue{Field: field + ".id", Reason: "request " + id + " already exists"}
}

// errRequestExists reports a request id that appeared between validation and
// the write.
func errRequestExists(id string) error {
	return apperr.Validation("snapshot requests failed validation", existingRequestIssue(RequestsKey, id))
}
