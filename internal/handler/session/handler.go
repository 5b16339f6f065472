package session

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/analysis/pricing"
	"github.com/murphlabs/murph/backend/internal/middleware"
	"github.com/murphlabs/murph/backend/internal/model/ledger"
	sessionModel "github.com/murphlabs/murph/backend/internal/model/session"
	sessionService "github.com/murphlabs/murph/backend/internal/service/session"
	"github.com/murphlabs/murph/backend/pkg/apperr"
	"github.com/murphlabs/murph/backend/pkg/utils"
)

// SettlementReader finds settlements that are no longer held in memory.
type SettlementReader interface {
	GetSettlement(ctx context.Context, sessionID string) (*ledger.SettlementRecord, error)
}

// SessionHistory reads sessions settled outside this process from the backend.
type SessionHistory interface {
	GetSession(ctx context.Context, sessionID string) (sessionModel.Record, error)
	SessionPayments(ctx context.Context, sessionID string) ([]sessionModel.Payment, error)
}

// Handler 会话计时相关的 HTTP 处理器
type Handler struct {
	manager   *sessionService.Manager
	ledger    SettlementReader
	history   SessionHistory
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	heartbeat time.Duration
}

// New 创建会话处理器。ledger 与 history 可为空。
func New(manager *sessionService.Manager, ledger SettlementReader, history SessionHistory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager:   manager,
		ledger:    ledger,
		history:   history,
		logger:    logger,
		heartbeat: 15 * time.Second,
		upgrader: websocket.Upgrader{
			// CORS middleware already filters browser origins
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/estimate", h.handleEstimate)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleStart)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleClose)
			r.Post("/pause", h.handlePause)
			r.Post("/resume", h.handleResume)
			r.Post("/progress", h.handleProgress)
			r.Post("/end", h.handleEnd)
			r.Get("/events", h.handleEvents)
			r.Get("/summary", h.handleSummary)
		})
	})

	r.Get("/ws/sessions/{sessionID}", h.handleWebSocket)
}

type startRequest struct {
	StudentID     string           `json:"studentId"`
	ListingID     string           `json:"listingId"`
	ReserveAmount *decimal.Decimal `json:"reserveAmount,omitempty"`
}

type startResponse struct {
	sessionService.Snapshot
	TransactionID string `json:"transactionId,omitempty"`
}

// handleStart 锁定资金并开始计时
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload startRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	user := middleware.UserID(r.Context())
	if user == "" {
		utils.RespondAppError(w, errMissingUser)
		return
	}
	if payload.StudentID != "" && payload.StudentID != user {
		utils.RespondAppError(w, apperr.New(apperr.Unauthorized, "session.Start", "cannot start a session for another user"))
		return
	}
	studentID := user

	reserve := decimal.Zero
	if payload.ReserveAmount != nil {
		reserve = *payload.ReserveAmount
	}

	ctrl, result, err := h.manager.Start(r.Context(), studentID, payload.ListingID, reserve)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, startResponse{
		Snapshot:      ctrl.Snapshot(),
		TransactionID: result.TransactionID,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

// handleClose 关闭视图：停止计时，不结算
func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*sessionService.Controller).Pause)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*sessionService.Controller).Resume)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Progress *float64 `json:"progress"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondAppError(w, err)
		return
	}
	if payload.Progress == nil {
		utils.RespondAppError(w, apperr.New(apperr.InvalidArgument, "session.SetProgress", "progress is required"))
		return
	}

	h.mutate(w, r, func(c *sessionService.Controller) error {
		return c.SetProgress(*payload.Progress)
	})
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(*sessionService.Controller) error) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := fn(ctrl); err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, ctrl.Snapshot())
}

// handleEnd 结束会话：结算、提交里程碑证明，返回结算明细
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	settlement, err := ctrl.End(r.Context())
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, settlement)
}

type summaryResponse struct {
	SessionID            string                      `json:"sessionId"`
	ListingID            string                      `json:"listingId"`
	ListingTitle         string                      `json:"listingTitle"`
	ElapsedSeconds       int64                       `json:"elapsedSeconds"`
	Elapsed              string                      `json:"elapsed"`
	CompletionPercentage float64                     `json:"completionPercentage"`
	ReserveAmount        decimal.Decimal             `json:"reserveAmount"`
	FinalCharge          decimal.Decimal             `json:"finalCharge"`
	Refund               decimal.Decimal             `json:"refund"`
	EscrowID             string                      `json:"escrowId,omitempty"`
	Proofs               []sessionModel.ProofOutcome `json:"proofs,omitempty"`
	EndedAt              time.Time                   `json:"endedAt"`
}

// handleSummary 返回结算摘要。内存中已清理的会话先查本地账本，再查后端。
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if ctrl, err := h.manager.Get(sessionID); err == nil {
		if !h.owns(w, r, ctrl.StudentID()) {
			return
		}
		s, ok := ctrl.Settlement()
		if !ok {
			utils.RespondAppError(w, apperr.New(apperr.SessionNotActive, "session.Summary", "Session has not ended"))
			return
		}
		utils.RespondJSON(w, http.StatusOK, summaryFromSettlement(s))
		return
	}

	if h.ledger != nil {
		record, err := h.ledger.GetSettlement(r.Context(), sessionID)
		switch {
		case err == nil:
			if h.owns(w, r, record.StudentID) {
				utils.RespondJSON(w, http.StatusOK, summaryFromRecord(record))
			}
			return
		case !apperr.Is(err, apperr.NotFound):
			utils.RespondAppError(w, err)
			return
		}
	}

	if h.history == nil {
		utils.RespondAppError(w, apperr.New(apperr.NotFound, "session.Summary", "Session not found"))
		return
	}
	h.summaryFromBackend(w, r, sessionID)
}

func (h *Handler) summaryFromBackend(w http.ResponseWriter, r *http.Request, sessionID string) {
	rec, err := h.history.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	if !h.owns(w, r, rec.StudentID) {
		return
	}
	if !rec.Ended() {
		utils.RespondAppError(w, apperr.New(apperr.SessionNotActive, "session.Summary", "Session has not ended"))
		return
	}

	elapsed := int64(math.Round(rec.DurationMinutes * 60))
	resp := summaryResponse{
		SessionID:            rec.ID,
		ListingID:            rec.ListingID,
		ElapsedSeconds:       elapsed,
		Elapsed:              pricing.FormatElapsed(elapsed),
		CompletionPercentage: rec.CompletionPercentage,
		FinalCharge:          rec.FinalCharge,
		Refund:               rec.Refund,
		EndedAt:              rec.EndTime,
	}

	// 预留金额只记录在 lock 支付行上
	payments, err := h.history.SessionPayments(r.Context(), sessionID)
	if err != nil {
		h.logger.Warn("session payments unavailable", "session_id", sessionID, "error", err)
	}
	for _, p := range payments {
		if p.Type == sessionModel.PaymentLock && p.Succeeded() {
			resp.ReserveAmount = p.Amount
		}
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

func summaryFromSettlement(s sessionModel.Settlement) summaryResponse {
	return summaryResponse{
		SessionID:            s.Result.SessionID,
		ListingID:            s.ListingID,
		ListingTitle:         s.Title,
		ElapsedSeconds:       s.Elapsed,
		Elapsed:              pricing.FormatElapsed(s.Elapsed),
		CompletionPercentage: s.Result.CompletionPercentage,
		ReserveAmount:        s.Result.ReserveAmount,
		FinalCharge:          s.Result.FinalCharge,
		Refund:               s.Result.Refund,
		EscrowID:             s.Result.EscrowID,
		Proofs:               s.Proofs,
		EndedAt:              s.EndedAt,
	}
}

func summaryFromRecord(rec *ledger.SettlementRecord) summaryResponse {
	return summaryResponse{
		SessionID:            rec.SessionID,
		ListingID:            rec.ListingID,
		ListingTitle:         rec.ListingTitle,
		ElapsedSeconds:       rec.ElapsedSeconds,
		Elapsed:              pricing.FormatElapsed(rec.ElapsedSeconds),
		CompletionPercentage: rec.CompletionPercentage,
		ReserveAmount:        rec.ReserveAmount,
		FinalCharge:          rec.FinalCharge,
		Refund:               rec.Refund,
		EscrowID:             rec.EscrowID,
		Proofs:               rec.Proofs,
		EndedAt:              rec.EndedAt,
	}
}

type estimateResponse struct {
	ElapsedSeconds int64           `json:"elapsedSeconds"`
	Elapsed        string          `json:"elapsed"`
	PricePerMinute decimal.Decimal `json:"pricePerMinute"`
	EstimatedCost  decimal.Decimal `json:"estimatedCost"`
	DisplayCost    string          `json:"displayCost"`
}

// handleEstimate 计算给定秒数与单价的预估费用
func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	const op = "session.Estimate"
	query := r.URL.Query()

	seconds, err := strconv.ParseInt(query.Get("seconds"), 10, 64)
	if err != nil {
		utils.RespondAppError(w, apperr.New(apperr.InvalidArgument, op, "seconds must be an integer"))
		return
	}
	price, err := decimal.NewFromString(query.Get("price"))
	if err != nil {
		utils.RespondAppError(w, apperr.New(apperr.InvalidArgument, op, "price must be a decimal number"))
		return
	}

	cost, err := pricing.EstimateCost(seconds, price)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, estimateResponse{
		ElapsedSeconds: seconds,
		Elapsed:        pricing.FormatElapsed(seconds),
		PricePerMinute: price,
		EstimatedCost:  cost,
		DisplayCost:    pricing.Display(cost),
	})
}

// handleEvents 以 SSE 推送计时与生命周期事件
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "snapshot", ctrl.Snapshot()); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				h.logger.Debug("sse client gone", "session_id", ctrl.ID(), "error", err)
				return
			}
			if ev.Type == sessionModel.EventCompleted || ev.Type == sessionModel.EventClosed {
				return
			}
		}
	}
}

func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (*sessionService.Controller, bool) {
	ctrl, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondAppError(w, err)
		return nil, false
	}
	if !h.owns(w, r, ctrl.StudentID()) {
		return nil, false
	}
	return ctrl, true
}

var errMissingUser = apperr.New(apperr.Unauthorized, "session.Access", "user id is required")

// owns 会话路由必须带用户 id，且只能访问自己的会话
func (h *Handler) owns(w http.ResponseWriter, r *http.Request, studentID string) bool {
	user := middleware.UserID(r.Context())
	if user == "" {
		utils.RespondAppError(w, errMissingUser)
		return false
	}
	if user != studentID {
		utils.RespondAppError(w, apperr.New(apperr.Unauthorized, "session.Access", "session belongs to another user"))
		return false
	}
	return true
}
