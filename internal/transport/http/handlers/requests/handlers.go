package requestshandler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/requests"
	"hradmin/internal/domain/workflow"
	"hradmin/internal/platform/metrics"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Handler struct {
	Engine  *workflow.Engine
	Audit   audit.Recorder
	Metrics *metrics.Collector
}

func NewHandler(engine *workflow.Engine, recorder audit.Recorder, collector *metrics.Collector) *Handler {
	return &Handler{Engine: engine, Audit: recorder, Metrics: collector}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/pending", h.handlePending)
		r.Route("/{requestID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/status", h.handleStatus)
			r.Post("/approve", h.handleApprove)
			r.Post("/reject", h.handleReject)
			r.Post("/cancel", h.handleCancel)
		})
	})
}

type createRequest struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId"`
	Details json.RawMessage `json:"details"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type listResponse struct {
	Items  []requests.Request `json:"items"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		api.FailError(w, err, "invalid_query", reqID)
		return
	}
	all, err := h.Engine.ListVisible(r.Context(), actor, filter)
	if err != nil {
		api.FailError(w, err, "request_list_failed", reqID)
		return
	}
	page := shared.ParsePagination(r, defaultPageSize, maxPageSize)
	api.Success(w, listResponse{
		Items:  shared.Page(all, page),
		Total:  len(all),
		Limit:  page.Limit,
		Offset: page.Offset,
	}, reqID)
}

func parseFilter(r *http.Request) (workflow.Filter, error) {
	q := r.URL.Query()
	v := shared.NewValidator()
	filter := workflow.Filter{UserID: strings.TrimSpace(q.Get("userId"))}
	if raw := q.Get("status"); raw != "" {
		status, err := requests.ParseStatus(raw)
		if err != nil {
			v.Add("status", err.Error())
		}
		filter.Status = status
	}
	if raw := q.Get("type"); raw != "" {
		typ, err := requests.ParseType(raw)
		if err != nil {
			v.Add("type", err.Error())
		}
		filter.Type = typ
	}
	return filter, v.Err("invalid query")
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	pending, err := h.Engine.PendingFor(r.Context(), actor)
	if err != nil {
		api.FailError(w, err, "request_pending_failed", reqID)
		return
	}
	api.Success(w, pending, reqID)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	var payload createRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}
	typ, err := requests.ParseType(payload.Type)
	if err != nil {
		api.FailError(w, apperr.Validation("invalid request", apperr.FieldIssue{Field: "type", Reason: err.Error()}), "invalid_payload", reqID)
		return
	}
	details, err := requests.DecodeDetails(typ, payload.Details)
	if err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}

	// Filing on behalf of someone else is an employee-management action.
	userID := actor.EmployeeID
	if other := strings.TrimSpace(payload.UserID); other != "" && other != actor.EmployeeID {
		if !auth.HasPermission(actor.Permissions(), auth.PermManageAllEmployees) {
			api.FailError(w, apperr.Forbidden("not allowed to file requests for other employees"), "forbidden", reqID)
			return
		}
		userID = other
	}

	req, err := h.Engine.CreateRequest(r.Context(), userID, typ, details)
	if err != nil {
		api.FailError(w, err, "request_create_failed", reqID)
		return
	}
	shared.Audit(r, h.Audit, actor.EmployeeID, audit.ActionRequestCreate, audit.EntityRequest, req.ID, nil, req)
	api.Created(w, req, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	req, err := h.Engine.Get(r.Context(), actor, chi.URLParam(r, "requestID"))
	if err != nil {
		api.FailError(w, err, "request_get_failed", reqID)
		return
	}
	api.Success(w, req, reqID)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	var payload statusRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}
	status, err := requests.ParseStatus(payload.Status)
	if err != nil {
		api.FailError(w, apperr.Validation("invalid status", apperr.FieldIssue{Field: "status", Reason: err.Error()}), "invalid_payload", reqID)
		return
	}

	h.respondTransition(w, r, actor, string(status), func(id string) (requests.Request, error) {
		return h.Engine.UpdateStatus(r.Context(), id, status, actor.EmployeeID)
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleNoted(w, r, "advance", h.Engine.Advance)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleNoted(w, r, string(requests.StatusRejected), h.Engine.Reject)
}

func (h *Handler) handleNoted(w http.ResponseWriter, r *http.Request, label string,
	fn func(ctx context.Context, requestID, actingEmployeeID, note string) (requests.Request, error),
) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	var payload noteRequest
	if err := shared.DecodeOptionalJSON(r, &payload); err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}
	h.respondTransition(w, r, actor, label, func(id string) (requests.Request, error) {
		return fn(r.Context(), id, actor.EmployeeID, strings.TrimSpace(payload.Note))
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	h.respondTransition(w, r, actor, string(requests.StatusCancelled), func(id string) (requests.Request, error) {
		return h.Engine.Cancel(r.Context(), id, actor.EmployeeID)
	})
}

// respondTransition runs a status change, counts it under the status it
// reached (or label when it failed), and audits successes.
func (h *Handler) respondTransition(w http.ResponseWriter, r *http.Request, actor auth.Actor, label string,
	fn func(requestID string) (requests.Request, error),
) {
	reqID := middleware.GetRequestID(r.Context())
	requestID := chi.URLParam(r, "requestID")

	req, err := fn(requestID)
	to := label
	if err == nil {
		to = string(req.Status)
	}
	h.Metrics.Transition(to, shared.Result(err))
	if err != nil {
		api.FailError(w, err, "request_transition_failed", reqID)
		return
	}

	action := audit.ActionRequestStatus
	if req.Status == requests.StatusCancelled {
		action = audit.ActionRequestCancel
	}
	var from requests.Status
	if n := len(req.History); n > 0 {
		from = req.History[n-1].From
	}
	shared.Audit(r, h.Audit, actor.EmployeeID, action, audit.EntityRequest, req.ID,
		map[string]requests.Status{"status": from}, map[string]requests.Status{"status": req.Status})
	api.Success(w, req, reqID)
}
