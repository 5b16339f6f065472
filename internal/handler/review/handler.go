package review

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/murphlabs/murph/backend/internal/middleware"
	reviewModel "github.com/murphlabs/murph/backend/internal/model/review"
	reviewService "github.com/murphlabs/murph/backend/internal/service/review"
	"github.com/murphlabs/murph/backend/pkg/apperr"
	"github.com/murphlabs/murph/backend/pkg/utils"
)

// Handler 评价提交与预览
type Handler struct {
	reviews *reviewService.Service
}

func New(reviews *reviewService.Service) *Handler {
	return &Handler{reviews: reviews}
}

// RegisterRoutes 注册评价相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/reviews", h.handleSubmit)
	r.Post("/reviews/preview", h.handlePreview)
	r.Get("/reviews/session/{sessionID}", h.handleGetBySession)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req reviewModel.Request
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondAppError(w, err)
		return
	}
	if user := middleware.UserID(r.Context()); user != "" {
		if req.UserID != "" && req.UserID != user {
			utils.RespondAppError(w, apperr.New(apperr.Unauthorized, "review.Submit", "cannot review for another user"))
			return
		}
		req.UserID = user
	}

	sub, err := h.reviews.Submit(r.Context(), req)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, sub)
}

// handlePreview 提交前给出质量评分与预计奖励
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text       string  `json:"text"`
		Rating     int     `json:"rating"`
		Completion float64 `json:"completion"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	preview, err := h.reviews.Preview(r.Context(), payload.Text, payload.Rating, payload.Completion)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, preview)
}

func (h *Handler) handleGetBySession(w http.ResponseWriter, r *http.Request) {
	sub, err := h.reviews.GetBySession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	if user := middleware.UserID(r.Context()); user != "" && sub.UserID != user {
		utils.RespondAppError(w, apperr.New(apperr.Unauthorized, "review.Get", "review belongs to another user"))
		return
	}
	utils.RespondJSON(w, http.StatusOK, sub)
}
