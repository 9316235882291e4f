package orghandler

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/hierarchy"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
)

type Handler struct {
	Hierarchy *hierarchy.Service
	Title     string
	Now       func() time.Time
}

func NewHandler(svc *hierarchy.Service, title string) *Handler {
	return &Handler{Hierarchy: svc, Title: title, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/org", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermViewOrgChart))
		r.Get("/tree", h.handleTree)
		r.Get("/forest", h.handleForest)
		r.Get("/tree.pdf", h.handleTreePDF)
	})
}

type treeResponse struct {
	Root *hierarchy.Node `json:"root"`
	Size int             `json:"size"`
}

func (h *Handler) handleTree(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	root, err := h.Hierarchy.BuildTree(r.Context())
	if err != nil {
		api.FailError(w, err, "org_tree_failed", reqID)
		return
	}
	api.Success(w, treeResponse{Root: root, Size: root.Size()}, reqID)
}

func (h *Handler) handleForest(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	roots, err := h.Hierarchy.BuildForest(r.Context())
	if err != nil {
		api.FailError(w, err, "org_forest_failed", reqID)
		return
	}
	if roots == nil {
		roots = []*hierarchy.Node{}
	}
	api.Success(w, roots, reqID)
}

// handleTreePDF renders every root so employees cut off from the main tree
// still appear in the export.
func (h *Handler) handleTreePDF(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	roots, err := h.Hierarchy.BuildForest(r.Context())
	if err != nil {
		api.FailError(w, err, "org_pdf_failed", reqID)
		return
	}

	var buf bytes.Buffer
	if err := hierarchy.RenderPDF(&buf, roots, h.Title, h.Now()); err != nil {
		api.FailError(w, err, "org_pdf_failed", reqID)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="org-chart.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
