package audithandler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type Handler struct {
	Events audit.Lister
}

func NewHandler(events audit.Lister) *Handler {
	return &Handler{Events: events}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermManageAllEmployees)).Get("/events", h.handleListEvents)
	})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     strings.TrimSpace(q.Get("action")),
		EntityType: strings.TrimSpace(q.Get("entityType")),
		EntityID:   strings.TrimSpace(q.Get("entityId")),
		ActorID:    strings.TrimSpace(q.Get("actorId")),
	}
	page := shared.ParsePagination(r, 100, 500)

	events, err := h.Events.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		api.FailError(w, err, "audit_list_failed", reqID)
		return
	}
	api.Success(w, events, reqID)
}
