package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	sessionService "github.com/murphlabs/murph/backend/internal/service/session"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 25 * time.Second
)

type inboundMessage struct {
	Type     string   `json:"type"`
	Progress *float64 `json:"progress,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Kind      string      `json:"kind,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 双向会话通道：推送事件，接收 pause/resume/progress/end/close 指令
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := ctrl.ID()
	h.logger.Info("websocket connected", "session_id", sessionID)

	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan outgoingMessage, 8)
	go h.readLoop(ctx, cancel, conn, ctrl, out)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	write := func(msg outgoingMessage) bool {
		msg.SessionID = sessionID
		msg.Timestamp = time.Now().UnixMilli()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("websocket write failed", "session_id", sessionID, "error", err)
			return false
		}
		return true
	}

	if !write(outgoingMessage{Type: "snapshot", Data: ctrl.Snapshot()}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if !write(outgoingMessage{Type: "event", Data: ev}) {
				return
			}
		case msg := <-out:
			if !write(msg) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// readLoop owns all reads on conn; writes go through out.
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, ctrl *sessionService.Controller, out chan<- outgoingMessage) {
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.reply(ctx, out, errorMessage(apperr.New(apperr.InvalidArgument, "session.ws", "invalid message")))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "session_id", ctrl.ID(), "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if reply, ok := h.dispatch(ctx, ctrl, msg); ok {
			h.reply(ctx, out, reply)
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, ctrl *sessionService.Controller, msg inboundMessage) (outgoingMessage, bool) {
	var err error
	switch msg.Type {
	case "pause":
		err = ctrl.Pause()
	case "resume":
		err = ctrl.Resume()
	case "progress":
		if msg.Progress == nil {
			err = apperr.New(apperr.InvalidArgument, "session.ws", "progress is required")
			break
		}
		err = ctrl.SetProgress(*msg.Progress)
		if err == nil {
			// progress has no event of its own
			return outgoingMessage{Type: "ack"}, true
		}
	case "end":
		settlement, endErr := ctrl.End(ctx)
		if endErr != nil {
			return errorMessage(endErr), true
		}
		return outgoingMessage{Type: "settlement", Data: settlement}, true
	case "close":
		ctrl.Close()
		return outgoingMessage{}, false
	case "ping":
		return outgoingMessage{Type: "pong"}, true
	default:
		err = apperr.New(apperr.InvalidArgument, "session.ws", "unsupported message type: "+msg.Type)
	}

	if err != nil {
		return errorMessage(err), true
	}
	return outgoingMessage{}, false
}

func (h *Handler) reply(ctx context.Context, out chan<- outgoingMessage, msg outgoingMessage) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func errorMessage(err error) outgoingMessage {
	return outgoingMessage{
		Type:      "error",
		Error:     apperr.Message(err),
		Kind:      string(apperr.KindOf(err)),
		Retryable: apperr.Retryable(err),
	}
}
