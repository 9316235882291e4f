package authhandler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type Handler struct {
	Directory directory.Store
	Secret    string
	TokenTTL  time.Duration
	Audit     audit.Recorder
}

func NewHandler(dir directory.Store, secret string, ttl time.Duration, recorder audit.Recorder) *Handler {
	return &Handler{Directory: dir, Secret: secret, TokenTTL: ttl, Audit: recorder}
}

// RegisterPublicRoutes mounts the endpoints reachable without a token.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.HandleMe)
}

type loginRequest struct {
	EmployeeID string `json:"employeeId"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Employee  directory.View `json:"employee"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var payload loginRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}
	v := shared.NewValidator()
	if strings.TrimSpace(payload.EmployeeID) == "" && strings.TrimSpace(payload.Email) == "" {
		v.Add("employeeId", "employeeId or email is required")
	}
	v.Required("password", payload.Password)
	if err := v.Err("invalid login"); err != nil {
		api.FailError(w, err, "invalid_payload", reqID)
		return
	}

	emp, err := h.lookup(r.Context(), payload)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		api.FailError(w, err, "login_failed", reqID)
		return
	}
	if err != nil || auth.CheckPassword(emp.PasswordHash, payload.Password) != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
		return
	}

	expiresAt := time.Now().Add(h.TokenTTL)
	token, err := auth.GenerateToken(h.Secret, emp.Actor(), h.TokenTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", reqID)
		return
	}

	shared.Audit(r, h.Audit, emp.ID, audit.ActionAuthLogin, audit.EntitySession, emp.ID, nil, nil)
	api.Success(w, loginResponse{Token: token, ExpiresAt: expiresAt.UTC(), Employee: emp.View()}, reqID)
}

func (h *Handler) lookup(ctx context.Context, payload loginRequest) (directory.Employee, error) {
	if id := strings.TrimSpace(payload.EmployeeID); id != "" {
		return h.Directory.Get(ctx, id)
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	employees, err := h.Directory.List(ctx)
	if err != nil {
		return directory.Employee{}, err
	}
	for _, emp := range employees {
		if strings.ToLower(emp.Email) == email {
			return emp, nil
		}
	}
	return directory.Employee{}, directory.ErrNotFound
}

// HandleMe returns the caller with permissions derived from the stored role,
// which may be newer than the role in the token.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	emp, err := h.Directory.Get(r.Context(), actor.EmployeeID)
	if errors.Is(err, directory.ErrNotFound) {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	if err != nil {
		api.FailError(w, err, "me_failed", reqID)
		return
	}
	api.Success(w, emp.View(), reqID)
}
