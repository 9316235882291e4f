package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/domain/hierarchy"
	"hradmin/internal/domain/requests"
	"hradmin/internal/platform/lock"
)

type Engine struct {
	Requests  requests.Store
	Directory directory.Store
	Locker    lock.Locker
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

func NewEngine(reqs requests.Store, dir directory.Store, locker lock.Locker, logger *slog.Logger) *Engine {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Requests:  reqs,
		Directory: dir,
		Locker:    locker,
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     uuid.NewString,
	}
}

// RequestLockKey scopes a workflow transition to a single request.
func RequestLockKey(id string) string {
	return "request:" + id
}

// Filter narrows ListVisible. Zero fields match everything.
type Filter struct {
	Status requests.Status
	Type   requests.Type
	UserID string
}

func (f Filter) match(req requests.Request) bool {
	if f.Status != "" && req.Status != f.Status {
		return false
	}
	if f.Type != "" && req.Type != f.Type {
		return false
	}
	if f.UserID != "" && req.UserID != f.UserID {
		return false
	}
	return true
}

// CreateRequest files a new request for userID in the first approval stage.
func (e *Engine) CreateRequest(ctx context.Context, userID string, typ requests.Type, details requests.Details) (requests.Request, error) {
	if err := requests.ValidateDetails(typ, details); err != nil {
		return requests.Request{}, err
	}
	if _, err := e.employee(ctx, userID); err != nil {
		return requests.Request{}, err
	}

	now := e.Now()
	req := requests.Request{
		ID:        e.NewID(),
		UserID:    userID,
		Type:      typ,
		Status:    requests.StatusPendingManager,
		Details:   details,
		CreatedAt: now,
		UpdatedAt: now,
		History:   []requests.Transition{},
	}
	if err := e.Requests.Put(ctx, req); err != nil {
		return requests.Request{}, errors.Wrap(err, "save request")
	}
	e.Logger.Info("request created", "request_id", req.ID, "user_id", userID, "type", typ)
	return req, nil
}

// UpdateStatus moves a request to newStatus on behalf of actingEmployeeID.
// Only the next stage or rejected are accepted, one step per call.
func (e *Engine) UpdateStatus(ctx context.Context, requestID string, newStatus requests.Status, actingEmployeeID string) (requests.Request, error) {
	return e.transition(ctx, requestID, actingEmployeeID, "", func(requests.Request) (requests.Status, error) {
		return newStatus, nil
	})
}

// Advance approves the current stage, moving the request one step on.
func (e *Engine) Advance(ctx context.Context, requestID, actingEmployeeID, note string) (requests.Request, error) {
	return e.transition(ctx, requestID, actingEmployeeID, note, func(req requests.Request) (requests.Status, error) {
		next, ok := NextStatus(req.Status)
		if !ok {
			return "", apperr.InvalidTransition(fmt.Sprintf("request is already %s", req.Status))
		}
		return next, nil
	})
}

func (e *Engine) Reject(ctx context.Context, requestID, actingEmployeeID, note string) (requests.Request, error) {
	return e.transition(ctx, requestID, actingEmployeeID, note, func(requests.Request) (requests.Status, error) {
		return requests.StatusRejected, nil
	})
}

// Cancel withdraws a pending request. Only the requester may cancel.
func (e *Engine) Cancel(ctx context.Context, requestID, actingEmployeeID string) (requests.Request, error) {
	release, err := e.lock(ctx, requestID)
	if err != nil {
		return requests.Request{}, err
	}
	defer release()

	req, err := e.request(ctx, requestID)
	if err != nil {
		return requests.Request{}, err
	}
	if req.UserID != actingEmployeeID {
		return requests.Request{}, e.reject(req, actingEmployeeID, requests.StatusCancelled,
			apperr.InvalidTransition("only the requester can cancel a request"))
	}
	if !req.Status.Pending() {
		return requests.Request{}, e.reject(req, actingEmployeeID, requests.StatusCancelled,
			apperr.InvalidTransition(fmt.Sprintf("request is already %s", req.Status)))
	}
	return e.apply(ctx, req, requests.StatusCancelled, actingEmployeeID, "")
}

func (e *Engine) transition(
	ctx context.Context,
	requestID, actingEmployeeID, note string,
	target func(requests.Request) (requests.Status, error),
) (requests.Request, error) {
	release, err := e.lock(ctx, requestID)
	if err != nil {
		return requests.Request{}, err
	}
	defer release()

	req, err := e.request(ctx, requestID)
	if err != nil {
		return requests.Request{}, err
	}
	actingEmployee, err := e.employee(ctx, actingEmployeeID)
	if err != nil {
		return requests.Request{}, err
	}
	next, err := target(req)
	if err != nil {
		return requests.Request{}, e.reject(req, actingEmployeeID, next, err)
	}

	if req.Status.Terminal() {
		return requests.Request{}, e.reject(req, actingEmployeeID, next,
			apperr.InvalidTransition(fmt.Sprintf("request is already %s", req.Status)))
	}
	if !legalSuccessor(req.Status, next) {
		return requests.Request{}, e.reject(req, actingEmployeeID, next,
			apperr.InvalidTransition(fmt.Sprintf("cannot move request from %s to %s", req.Status, next)))
	}
	if req.UserID == actingEmployeeID {
		return requests.Request{}, e.reject(req, actingEmployeeID, next,
			apperr.InvalidTransition("cannot approve or reject your own request"))
	}
	if !CanApprove(actingEmployee.Actor(), req) {
		return requests.Request{}, e.reject(req, actingEmployeeID, next,
			apperr.InvalidTransition(fmt.Sprintf("%s cannot act on a request in %s", actingEmployee.Role, req.Status)))
	}
	return e.apply(ctx, req, next, actingEmployeeID, note)
}

func (e *Engine) apply(ctx context.Context, req requests.Request, next requests.Status, actingEmployeeID, note string) (requests.Request, error) {
	now := e.Now()
	updated := req.Clone()
	updated.History = append(updated.History, requests.Transition{
		From:    req.Status,
		To:      next,
		ActorID: actingEmployeeID,
		At:      now,
		Note:    note,
	})
	updated.Status = next
	updated.UpdatedAt = now
	if next != requests.StatusCancelled {
		updated.ApproverID = actingEmployeeID
	}
	if err := e.Requests.Put(ctx, updated); err != nil {
		return requests.Request{}, errors.Wrap(err, "save request")
	}
	e.Logger.Info("request transitioned",
		"request_id", req.ID,
		"from", req.Status,
		"to", next,
		"actor_id", actingEmployeeID,
	)
	return updated, nil
}

// Get returns a request the actor is allowed to see.
func (e *Engine) Get(ctx context.Context, actor auth.Actor, requestID string) (requests.Request, error) {
	req, err := e.request(ctx, requestID)
	if err != nil {
		return requests.Request{}, err
	}
	employees, err := e.Directory.List(ctx)
	if err != nil {
		return requests.Request{}, err
	}
	if !visible(actor, employees, req) && !CanApprove(actor, req) {
		return requests.Request{}, apperr.Forbidden("not allowed to view this request")
	}
	return req, nil
}

// ListVisible returns the requests the actor may see, newest first. Holders
// of employees.view_all see everything, department managers see their own
// and those of their subtree, everyone else sees their own.
func (e *Engine) ListVisible(ctx context.Context, actor auth.Actor, filter Filter) ([]requests.Request, error) {
	all, err := e.Requests.List(ctx)
	if err != nil {
		return nil, err
	}
	employees, err := e.Directory.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []requests.Request{}
	for _, req := range all {
		if filter.match(req) && visible(actor, employees, req) {
			out = append(out, req)
		}
	}
	requests.SortNewestFirst(out)
	return out, nil
}

// PendingFor returns the requests the actor can act on right now.
func (e *Engine) PendingFor(ctx context.Context, actor auth.Actor) ([]requests.Request, error) {
	all, err := e.Requests.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []requests.Request{}
	for _, req := range all {
		if CanApprove(actor, req) {
			out = append(out, req)
		}
	}
	requests.SortNewestFirst(out)
	return out, nil
}

func visible(actor auth.Actor, employees []directory.Employee, req requests.Request) bool {
	if req.UserID == actor.EmployeeID {
		return true
	}
	if actor.Can(auth.PermViewAllEmployees) {
		return true
	}
	if actor.Can(auth.PermManageDepartmentEmployees) {
		return hierarchy.IsInSubtree(employees, actor.EmployeeID, req.UserID)
	}
	return false
}

func (e *Engine) request(ctx context.Context, id string) (requests.Request, error) {
	req, err := e.Requests.Get(ctx, id)
	if errors.Is(err, requests.ErrNotFound) {
		return requests.Request{}, apperr.NotFound("request", id)
	}
	if err != nil {
		return requests.Request{}, err
	}
	return req, nil
}

func (e *Engine) employee(ctx context.Context, id string) (directory.Employee, error) {
	emp, err := e.Directory.Get(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return directory.Employee{}, apperr.NotFound("employee", id)
	}
	if err != nil {
		return directory.Employee{}, err
	}
	return emp, nil
}

func (e *Engine) lock(ctx context.Context, requestID string) (func(), error) {
	release, err := e.Locker.Lock(ctx, RequestLockKey(requestID))
	if err != nil {
		return nil, errors.Wrapf(err, "acquire lock for request %s", requestID)
	}
	return release, nil
}

func (e *Engine) reject(req requests.Request, actorID string, to requests.Status, err error) error {
	e.Logger.Warn("request transition rejected",
		"request_id", req.ID,
		"from", req.Status,
		"to", to,
		"actor_id", actorID,
		"error", err.Error(),
	)
	return err
}
