package auth

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/smartq/launchpad/internal/platform/httpx"
	"github.com/smartq/launchpad/internal/rbac"
	"github.com/smartq/launchpad/internal/shared"
	"github.com/smartq/launchpad/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *shared.SessionManager
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager) *Handler {
	return &Handler{logger: logger, service: service, sessions: sessions, validate: validator.New()}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
		r.Get("/me", h.me)
		r.Post("/switch-role", h.switchRole)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// identityView is the session payload the SPA consumes.
type identityView struct {
	UserID     string      `json:"userId"`
	Email      string      `json:"email"`
	Name       string      `json:"name"`
	Roles      []rbac.Role `json:"roles"`
	ActiveRole rbac.Role   `json:"activeRole"`
}

func identityOf(u users.User, active rbac.Role) identityView {
	return identityView{
		UserID:     u.ID.String(),
		Email:      u.Email,
		Name:       u.Name,
		Roles:      u.Roles,
		ActiveRole: active,
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(err))
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	// the first held role becomes the active role until switched
	active := user.Roles[0]
	sess.SetUser(user.ID.String())
	sess.SetActiveRole(string(active))
	httpx.OK(w, "Login successful", identityOf(user, active))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.sessions.Destroy(sess)
	}
	httpx.OK(w, "Logged out", nil)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	user, err := h.service.Identity(r.Context(), sess.User())
	if err != nil {
		// stale session referencing a deleted account
		h.sessions.Destroy(sess)
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	httpx.OK(w, "Session retrieved", identityOf(user, rbac.Role(sess.ActiveRole())))
}

type switchRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) switchRole(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req switchRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	role := rbac.Role(req.Role)
	user, err := h.service.SwitchRole(r.Context(), sess.User(), role)
	if err != nil {
		if errors.Is(err, shared.ErrRoleNotHeld) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", shared.UserSafeMessage(err))
			return
		}
		h.logger.Error("switch role failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.SetActiveRole(string(role))
	httpx.OK(w, "Active role updated", identityOf(user, role))
}
