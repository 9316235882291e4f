package snapshothandler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/snapshot"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type Handler struct {
	Snapshots *snapshot.Service
	Audit     audit.Recorder
}

func NewHandler(svc *snapshot.Service, recorder audit.Recorder) *Handler {
	return &Handler{Snapshots: svc, Audit: recorder}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/snapshot", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermManageAllEmployees))
		r.Get("/", h.handleExport)
		r.Post("/import", h.handleImport)
	})
}

// handleExport streams the raw snapshot document rather than an envelope so
// the download can be fed back to import unchanged.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var buf bytes.Buffer
	if _, err := h.Snapshots.Export(r.Context(), &buf); err != nil {
		api.FailError(w, err, "snapshot_export_failed", reqID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="hr-snapshot.json"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	doc, err := snapshot.Decode(r.Body)
	if err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}
	result, err := h.Snapshots.Import(r.Context(), actor, doc)
	if err != nil {
		api.FailError(w, err, "snapshot_import_failed", reqID)
		return
	}

	shared.Audit(r, h.Audit, actor.EmployeeID, audit.ActionSnapshotImport, audit.EntitySnapshot, reqID, nil, result)
	api.Success(w, result, reqID)
}
