package wallet

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/murphlabs/murph/backend/internal/middleware"
	walletService "github.com/murphlabs/murph/backend/internal/service/wallet"
	"github.com/murphlabs/murph/backend/pkg/apperr"
	"github.com/murphlabs/murph/backend/pkg/utils"
)

// Handler 钱包余额与交易记录
type Handler struct {
	wallet *walletService.Service
}

func New(wallet *walletService.Service) *Handler {
	return &Handler{wallet: wallet}
}

// RegisterRoutes 注册钱包相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/wallet/balance", h.handleBalance)
	r.Post("/wallet/connect", h.handleConnect)
	r.Get("/wallet/transactions", h.handleTransactions)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	bal, err := h.wallet.Balance(r.Context(), userID)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, bal)
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	bal, err := h.wallet.Connect(r.Context(), userID)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, bal)
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(w, r)
	if !ok {
		return
	}
	txs, err := h.wallet.Transactions(r.Context(), userID)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, txs)
}

// requestUser 优先使用认证中间件给出的用户，其次是 userId 查询参数
func requestUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := middleware.UserID(r.Context())
	query := strings.TrimSpace(r.URL.Query().Get("userId"))

	switch {
	case user != "" && query != "" && query != user:
		utils.RespondAppError(w, apperr.New(apperr.Unauthorized, "wallet", "cannot read another user's wallet"))
		return "", false
	case user != "":
		return user, true
	case query != "":
		return query, true
	default:
		utils.RespondAppError(w, apperr.New(apperr.InvalidArgument, "wallet", "user id is required"))
		return "", false
	}
}
