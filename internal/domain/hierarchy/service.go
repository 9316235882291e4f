package hierarchy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/platform/lock"
	"hradmin/internal/platform/validation"
)

// DirectoryLockKey scopes every hierarchy mutation to the whole directory.
const DirectoryLockKey = "directory"

type Service struct {
	Store  directory.Store
	Locker lock.Locker
	Logger *slog.Logger
	NextID func(existingIDs []string) string
	Now    func() time.Time
}

func NewService(store directory.Store, locker lock.Locker, logger *slog.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:  store,
		Locker: locker,
		Logger: logger,
		NextID: directory.NextEmployeeID,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewEmployee is the payload for CreateUnderManager.
type NewEmployee struct {
	Name       string    `json:"name" validate:"required"`
	Email      string    `json:"email" validate:"omitempty,email"`
	Position   string    `json:"position"`
	Department string    `json:"department"`
	Role       auth.Role `json:"role"`
	Password   string    `json:"password,omitempty" validate:"omitempty,min=8"`
}

func (s *Service) BuildTree(ctx context.Context) (*Node, error) {
	employees, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTreeFrom(employees), nil
}

func (s *Service) BuildForest(ctx context.Context) ([]*Node, error) {
	employees, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	return BuildForestFrom(employees), nil
}

// AssignManager moves employeeID under newManagerID; an empty newManagerID
// makes the employee a root.
func (s *Service) AssignManager(ctx context.Context, actor auth.Actor, employeeID, newManagerID string) (directory.Employee, error) {
	release, err := s.lock(ctx)
	if err != nil {
		return directory.Employee{}, err
	}
	defer release()

	employees, err := s.Store.List(ctx)
	if err != nil {
		return directory.Employee{}, err
	}
	index := indexByID(employees)

	emp, ok := index[employeeID]
	if !ok {
		return directory.Employee{}, s.reject("assign_manager", actor, apperr.NotFound("employee", employeeID))
	}
	if newManagerID == employeeID {
		return directory.Employee{}, s.reject("assign_manager", actor, apperr.InvalidOperation("cannot report to self"))
	}
	if newManagerID != "" {
		if _, ok := index[newManagerID]; !ok {
			return directory.Employee{}, s.reject("assign_manager", actor, apperr.NotFound("manager", newManagerID))
		}
	}
	if err := authorizeMove(actor, index, employeeID, newManagerID); err != nil {
		return directory.Employee{}, s.reject("assign_manager", actor, err)
	}
	if newManagerID != "" && isAncestorOrSelf(index, employeeID, newManagerID) {
		return directory.Employee{}, s.reject("assign_manager", actor, apperr.InvalidOperation("would create a cycle"))
	}
	if emp.ManagerID == newManagerID {
		return emp, nil
	}

	emp.ManagerID = newManagerID
	emp.UpdatedAt = s.Now()
	if err := s.Store.Put(ctx, emp); err != nil {
		return directory.Employee{}, errors.Wrap(err, "save employee")
	}
	s.Logger.Info("manager assigned",
		"employee_id", employeeID,
		"manager_id", newManagerID,
		"actor_id", actor.EmployeeID,
	)
	return emp, nil
}

// CreateUnderManager appends a new employee reporting to managerID, or a new
// root when managerID is empty.
func (s *Service) CreateUnderManager(ctx context.Context, actor auth.Actor, payload NewEmployee, managerID string) (directory.Employee, error) {
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Email = strings.TrimSpace(payload.Email)
	if err := validation.Struct(payload, "invalid employee"); err != nil {
		return directory.Employee{}, s.reject("create_employee", actor, err)
	}
	role := auth.RoleEmployee
	if payload.Role != "" {
		parsed, err := auth.ParseRole(string(payload.Role))
		if err != nil {
			return directory.Employee{}, s.reject("create_employee", actor,
				apperr.Validation("invalid employee", apperr.FieldIssue{Field: "role", Reason: err.Error()}))
		}
		role = parsed
	}

	release, err := s.lock(ctx)
	if err != nil {
		return directory.Employee{}, err
	}
	defer release()

	employees, err := s.Store.List(ctx)
	if err != nil {
		return directory.Employee{}, err
	}
	index := indexByID(employees)

	if managerID != "" {
		if _, ok := index[managerID]; !ok {
			return directory.Employee{}, s.reject("create_employee", actor, apperr.NotFound("manager", managerID))
		}
	}
	if err := authorizeCreate(actor, index, managerID, role); err != nil {
		return directory.Employee{}, s.reject("create_employee", actor, err)
	}

	var hash string
	if payload.Password != "" {
		hash, err = auth.HashPassword(payload.Password)
		if err != nil {
			return directory.Employee{}, errors.Wrap(err, "hash password")
		}
	}

	now := s.Now()
	emp := directory.Employee{
		ID:           s.NextID(directory.IDs(employees)),
		Name:         payload.Name,
		Email:        payload.Email,
		Position:     strings.TrimSpace(payload.Position),
		Department:   strings.TrimSpace(payload.Department),
		ManagerID:    managerID,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, clash := index[emp.ID]; clash {
		return directory.Employee{}, errors.Errorf("generated id %s already exists", emp.ID)
	}
	if err := s.Store.Put(ctx, emp); err != nil {
		return directory.Employee{}, errors.Wrap(err, "save employee")
	}
	s.Logger.Info("employee created",
		"employee_id", emp.ID,
		"manager_id", managerID,
		"role", emp.Role,
		"actor_id", actor.EmployeeID,
	)
	return emp, nil
}

// DeleteNode removes a leaf employee.
func (s *Service) DeleteNode(ctx context.Context, actor auth.Actor, employeeID string) error {
	release, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	employees, err := s.Store.List(ctx)
	if err != nil {
		return err
	}
	index := indexByID(employees)

	if _, ok := index[employeeID]; !ok {
		return s.reject("delete_employee", actor, apperr.NotFound("employee", employeeID))
	}
	if employeeID == actor.EmployeeID {
		return s.reject("delete_employee", actor, apperr.InvalidOperation("cannot delete yourself"))
	}
	if err := authorizeTarget(actor, index, employeeID); err != nil {
		return s.reject("delete_employee", actor, err)
	}
	for _, emp := range employees {
		if emp.ManagerID == employeeID {
			return s.reject("delete_employee", actor,
				apperr.InvalidOperation("cannot delete employee with subordinates; move them first"))
		}
	}

	if err := s.Store.Remove(ctx, employeeID); err != nil {
		return errors.Wrap(err, "remove employee")
	}
	s.Logger.Info("employee deleted", "employee_id", employeeID, "actor_id", actor.EmployeeID)
	return nil
}

// ChangeRole replaces the employee's role. Permissions follow implicitly
// since they are derived from the role on every read.
func (s *Service) ChangeRole(ctx context.Context, actor auth.Actor, employeeID string, role auth.Role) (directory.Employee, error) {
	if !role.Valid() {
		return directory.Employee{}, s.reject("change_role", actor,
			apperr.Validation("invalid role", apperr.FieldIssue{Field: "role", Reason: "unknown role " + string(role)}))
	}

	release, err := s.lock(ctx)
	if err != nil {
		return directory.Employee{}, err
	}
	defer release()

	emp, err := s.Store.Get(ctx, employeeID)
	if errors.Is(err, directory.ErrNotFound) {
		return directory.Employee{}, s.reject("change_role", actor, apperr.NotFound("employee", employeeID))
	}
	if err != nil {
		return directory.Employee{}, err
	}
	if employeeID == actor.EmployeeID {
		return directory.Employee{}, s.reject("change_role", actor, apperr.InvalidOperation("cannot change your own role"))
	}
	set := actor.Permissions()
	if !auth.CanAssignRole(set, role) || !auth.CanAssignRole(set, emp.Role) {
		return directory.Employee{}, s.reject("change_role", actor, apperr.Forbidden("not allowed to assign this role"))
	}
	if emp.Role == role {
		return emp, nil
	}

	previous := emp.Role
	emp.Role = role
	emp.UpdatedAt = s.Now()
	if err := s.Store.Put(ctx, emp); err != nil {
		return directory.Employee{}, errors.Wrap(err, "save employee")
	}
	s.Logger.Info("role changed",
		"employee_id", employeeID,
		"from", previous,
		"to", role,
		"actor_id", actor.EmployeeID,
	)
	return emp, nil
}

// Subordinates returns the direct reports of id, or the whole subtree below
// it when recursive is set, in id order.
func (s *Service) Subordinates(ctx context.Context, id string, recursive bool) ([]directory.Employee, error) {
	employees, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	index := indexByID(employees)
	if _, ok := index[id]; !ok {
		return nil, apperr.NotFound("employee", id)
	}
	if !recursive {
		out := childIndex(sortedCopy(employees))[id]
		if out == nil {
			out = []directory.Employee{}
		}
		return out, nil
	}
	out := []directory.Employee{}
	for _, emp := range sortedCopy(employees) {
		if emp.ID != id && isAncestorOrSelf(index, id, emp.ID) {
			out = append(out, emp)
		}
	}
	return out, nil
}

// ReportingChain returns the managers above id, nearest first and root last.
func (s *Service) ReportingChain(ctx context.Context, id string) ([]directory.Employee, error) {
	employees, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	index := indexByID(employees)
	emp, ok := index[id]
	if !ok {
		return nil, apperr.NotFound("employee", id)
	}
	chain := []directory.Employee{}
	seen := map[string]bool{id: true}
	for cur := emp.ManagerID; cur != "" && !seen[cur]; {
		manager, ok := index[cur]
		if !ok {
			break
		}
		seen[cur] = true
		chain = append(chain, manager)
		cur = manager.ManagerID
	}
	return chain, nil
}

// IsInSubtree reports whether id is rootID or one of its descendants.
func IsInSubtree(employees []directory.Employee, rootID, id string) bool {
	return isAncestorOrSelf(indexByID(employees), rootID, id)
}

func (s *Service) lock(ctx context.Context) (func(), error) {
	release, err := s.Locker.Lock(ctx, DirectoryLockKey)
	if err != nil {
		return nil, errors.Wrap(err, "acquire directory lock")
	}
	return release, nil
}

func (s *Service) reject(op string, actor auth.Actor, err error) error {
	s.Logger.Warn("hierarchy mutation rejected",
		"op", op,
		"actor_id", actor.EmployeeID,
		"kind", apperr.KindOf(err),
		"error", err.Error(),
	)
	return err
}

// authorizeTarget also applies the role-assignment rule to the target's
// current role, so a directory-wide manager cannot remove or re-parent
// someone whose role they could not have granted.
func authorizeTarget(actor auth.Actor, index map[string]directory.Employee, targetID string) error {
	if actor.Can(auth.PermManageAllEmployees) {
		if target, ok := index[targetID]; ok && !auth.CanAssignRole(actor.Permissions(), target.Role) {
			return apperr.Forbidden("not allowed to manage this employee")
		}
		return nil
	}
	if actor.Can(auth.PermManageDepartmentEmployees) && isAncestorOrSelf(index, actor.EmployeeID, targetID) {
		return nil
	}
	return apperr.Forbidden("not allowed to manage this employee")
}

func authorizeMove(actor auth.Actor, index map[string]directory.Employee, employeeID, newManagerID string) error {
	if err := authorizeTarget(actor, index, employeeID); err != nil {
		return err
	}
	if actor.Can(auth.PermManageAllEmployees) {
		return nil
	}
	if employeeID == actor.EmployeeID {
		return apperr.Forbidden("cannot move yourself")
	}
	if newManagerID == "" || !isAncestorOrSelf(index, actor.EmployeeID, newManagerID) {
		return apperr.Forbidden("destination manager is outside your department")
	}
	return nil
}

func authorizeCreate(actor auth.Actor, index map[string]directory.Employee, managerID string, role auth.Role) error {
	set := actor.Permissions()
	if actor.Can(auth.PermManageAllEmployees) {
		if !auth.CanAssignRole(set, role) {
			return apperr.Forbidden("not allowed to assign this role")
		}
		return nil
	}
	if !actor.Can(auth.PermManageDepartmentEmployees) {
		return apperr.Forbidden("not allowed to create employees")
	}
	if managerID == "" || !isAncestorOrSelf(index, actor.EmployeeID, managerID) {
		return apperr.Forbidden("manager is outside your department")
	}
	if !auth.CanGrantInDepartment(set, role) {
		return apperr.Forbidden("not allowed to assign this role")
	}
	return nil
}
