package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/murphlabs/murph/backend/internal/backend"
	"github.com/murphlabs/murph/backend/pkg/utils"
)

// Authenticator signs users in against the backend.
type Authenticator interface {
	Login(ctx context.Context, creds backend.Credentials) (backend.AuthResult, error)
	Register(ctx context.Context, reg backend.Registration) (backend.AuthResult, error)
}

// Handler 登录与注册
type Handler struct {
	auth   Authenticator
	logger *slog.Logger
}

func New(auth Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: auth, logger: logger}
}

// RegisterRoutes 注册认证相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/register", h.handleRegister)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds backend.Credentials
	if err := utils.DecodeJSON(w, r, &creds); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), creds)
	if err != nil {
		h.logger.Info("login failed", "error", err)
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg backend.Registration
	if err := utils.DecodeJSON(w, r, &reg); err != nil {
		utils.RespondAppError(w, err)
		return
	}
	if reg.Role == "" {
		reg.Role = "student"
	}

	result, err := h.auth.Register(r.Context(), reg)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	h.logger.Info("user registered", "user_id", result.UserID, "role", result.Role)
	utils.RespondJSON(w, http.StatusCreated, result)
}
