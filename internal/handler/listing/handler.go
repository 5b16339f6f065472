package listing

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/murphlabs/murph/backend/internal/backend"
	"github.com/murphlabs/murph/backend/internal/model/listing"
	"github.com/murphlabs/murph/backend/pkg/apperr"
	"github.com/murphlabs/murph/backend/pkg/utils"
)

// Catalog is the part of the backend the course pages need beyond the feed.
type Catalog interface {
	GetListingDetail(ctx context.Context, listingID string) (listing.Detail, error)
	Suggest(ctx context.Context, query string) (backend.Suggestion, error)
}

// Handler 课程列表与详情的HTTP处理器
type Handler struct {
	listings listing.Store
	catalog  Catalog
}

// New 创建课程处理器
func New(listings listing.Store, catalog Catalog) *Handler {
	return &Handler{
		listings: listings,
		catalog:  catalog,
	}
}

// RegisterRoutes 注册课程相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/listings", h.handleList)
	r.Get("/listings/{listingID}", h.handleGet)
	r.Get("/listings/{listingID}/detail", h.handleDetail)
	r.Post("/discovery/suggest", h.handleSuggest)
}

// handleList 列出课程，支持 limit 与 tag 过滤
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := listing.Query{Tag: r.URL.Query().Get("tag")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			utils.RespondAppError(w, apperr.New(apperr.InvalidArgument, "listing.List", "limit must be a non-negative integer"))
			return
		}
		q.Limit = limit
	}

	items, err := h.listings.List(r.Context(), q)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	if items == nil {
		items = []listing.Listing{}
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.listings.FindByID(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, item)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "course details unavailable")
		return
	}
	detail, err := h.catalog.GetListingDetail(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, detail)
}

// handleSuggest 根据学习目标推荐课程
func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "suggestions unavailable")
		return
	}

	var payload struct {
		Query string `json:"query"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	suggestion, err := h.catalog.Suggest(r.Context(), payload.Query)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	if suggestion.Matches == nil {
		suggestion.Matches = []listing.Listing{}
	}
	utils.RespondJSON(w, http.StatusOK, suggestion)
}
