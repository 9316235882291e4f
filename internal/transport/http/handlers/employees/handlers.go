package employeeshandler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/domain/hierarchy"
	"hradmin/internal/platform/metrics"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type Handler struct {
	Directory directory.Store
	Hierarchy *hierarchy.Service
	Audit     audit.Recorder
	Metrics   *metrics.Collector
}

func NewHandler(dir directory.Store, svc *hierarchy.Service, recorder audit.Recorder, collector *metrics.Collector) *Handler {
	return &Handler{Directory: dir, Hierarchy: svc, Audit: recorder, Metrics: collector}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{employeeID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)
			r.Put("/manager", h.handleAssignManager)
			r.With(middleware.RequirePermission(auth.PermManageAllEmployees)).Put("/role", h.handleChangeRole)
			r.Get("/chain", h.handleChain)
			r.Get("/subordinates", h.handleSubordinates)
		})
	})
}

type createEmployeeRequest struct {
	hierarchy.NewEmployee
	ManagerID string `json:"managerId"`
}

type assignManagerRequest struct {
	ManagerID string `json:"managerId"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// canView: holders of employees.view_all see everyone, department managers
// their own subtree, everyone else only themselves.
func canView(actor auth.Actor, employees []directory.Employee, id string) bool {
	if actor.EmployeeID == id || actor.Can(auth.PermViewAllEmployees) {
		return true
	}
	if actor.Can(auth.PermManageDepartmentEmployees) {
		return hierarchy.IsInSubtree(employees, actor.EmployeeID, id)
	}
	return false
}

func views(employees []directory.Employee) []directory.View {
	out := make([]directory.View, 0, len(employees))
	for _, emp := range employees {
		out = append(out, emp.View())
	}
	return out
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	employees, err := h.Directory.List(r.Context())
	if err != nil {
		api.FailError(w, err, "employee_list_failed", reqID)
		return
	}
	directory.SortByID(employees)

	filtered := make([]directory.Employee, 0, len(employees))
	for _, emp := range employees {
		if canView(actor, employees, emp.ID) {
			filtered = append(filtered, emp)
		}
	}
	api.Success(w, views(filtered), reqID)
}

// visibleTarget loads the employee named in the path and checks the caller
// may see it.
func (h *Handler) visibleTarget(r *http.Request, actor auth.Actor) (directory.Employee, error) {
	id := chi.URLParam(r, "employeeID")
	employees, err := h.Directory.List(r.Context())
	if err != nil {
		return directory.Employee{}, err
	}
	for _, emp := range employees {
		if emp.ID != id {
			continue
		}
		if !canView(actor, employees, id) {
			return directory.Employee{}, apperr.Forbidden("not allowed to view this employee")
		}
		return emp, nil
	}
	return directory.Employee{}, apperr.NotFound("employee", id)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	emp, err := h.visibleTarget(r, actor)
	if err != nil {
		api.FailError(w, err, "employee_get_failed", reqID)
		return
	}
	api.Success(w, emp.View(), reqID)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	var payload createEmployeeRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}

	emp, err := h.Hierarchy.CreateUnderManager(r.Context(), actor, payload.NewEmployee, payload.ManagerID)
	h.Metrics.Mutation("create_employee", shared.Result(err))
	if err != nil {
		api.FailError(w, err, "employee_create_failed", reqID)
		return
	}

	shared.Audit(r, h.Audit, actor.EmployeeID, audit.ActionEmployeeCreate, audit.EntityEmployee, emp.ID, nil, emp)
	api.Created(w, emp.View(), reqID)
}

func (h *Handler) handleAssignManager(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	var payload assignManagerRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	before, err := h.previous(r, employeeID)
	if err != nil {
		api.FailError(w, err, "assign_manager_failed", reqID)
		return
	}
	emp, err := h.Hierarchy.AssignManager(r.Context(), actor, employeeID, payload.ManagerID)
	h.Metrics.Mutation("assign_manager", shared.Result(err))
	if err != nil {
		api.FailError(w, err, "assign_manager_failed", reqID)
		return
	}

	if before.ManagerID != emp.ManagerID {
		shared.Audit(r, h.Audit, actor.EmployeeID, audit.ActionEmployeeMove, audit.EntityEmployee, emp.ID,
			map[string]string{"managerId": before.ManagerID}, map[string]string{"managerId": emp.ManagerID})
	}
	api.Success(w, emp.View(), reqID)
}

func (h *Handler) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	var payload changeRoleRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}
	role, err := auth.ParseRole(payload.Role)
	if err != nil {
		api.FailError(w, apperr.Validation("invalid role", apperr.FieldIssue{Field: "role", Reason: err.Error()}), "invalid_payload", reqID)
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	before, err := h.previous(r, employeeID)
	if err != nil {
		api.FailError(w, err, "change_role_failed", reqID)
		return
	}
	emp, err := h.Hierarchy.ChangeRole(r.Context(), actor, employeeID, role)
	h.Metrics.Mutation("change_role", shared.Result(err))
	if err != nil {
		api.FailError(w, err, "change_role_failed", reqID)
		return
	}

	shared.Audit(r, h.Audit, actor.EmployeeID, audit.ActionEmployeeRole, audit.EntityEmployee, emp.ID,
		map[string]auth.Role{"role": before.Role}, map[string]auth.Role{"role": emp.Role})
	api.Success(w, emp.View(), reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	before, err := h.previous(r, employeeID)
	if err != nil {
		api.FailError(w, err, "employee_delete_failed", reqID)
		return
	}
	err = h.Hierarchy.DeleteNode(r.Context(), actor, employeeID)
	h.Metrics.Mutation("delete_employee", shared.Result(err))
	if err != nil {
		api.FailError(w, err, "employee_delete_failed", reqID)
		return
	}

	shared.Audit(r, h.Audit, actor.EmployeeID, audit.ActionEmployeeDelete, audit.EntityEmployee, employeeID, before, nil)
	api.Success(w, map[string]string{"id": employeeID, "status": "deleted"}, reqID)
}

func (h *Handler) handleChain(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	emp, err := h.visibleTarget(r, actor)
	if err != nil {
		api.FailError(w, err, "chain_failed", reqID)
		return
	}
	chain, err := h.Hierarchy.ReportingChain(r.Context(), emp.ID)
	if err != nil {
		api.FailError(w, err, "chain_failed", reqID)
		return
	}
	api.Success(w, views(chain), reqID)
}

func (h *Handler) handleSubordinates(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	recursive := false
	if raw := r.URL.Query().Get("recursive"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			api.FailError(w, apperr.Validation("invalid query", apperr.FieldIssue{Field: "recursive", Reason: "must be a boolean"}), "invalid_query", reqID)
			return
		}
		recursive = parsed
	}

	emp, err := h.visibleTarget(r, actor)
	if err != nil {
		api.FailError(w, err, "subordinates_failed", reqID)
		return
	}
	subs, err := h.Hierarchy.Subordinates(r.Context(), emp.ID, recursive)
	if err != nil {
		api.FailError(w, errors.Wrap(err, "list subordinates"), "subordinates_failed", reqID)
		return
	}
	api.Success(w, views(subs), reqID)
}

// previous loads the record a mutation is about to change, for the audit
// trail. A missing record is left to the service to report.
func (h *Handler) previous(r *http.Request, id string) (directory.Employee, error) {
	emp, err := h.Directory.Get(r.Context(), id)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return directory.Employee{}, errors.Wrapf(err, "load employee %s", id)
	}
	return emp, nil
}
