package controllers

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"parley/parley/middlewares"
	"parley/parley/services/chat"
	"parley/parley/services/feed"
	"parley/parley/utils/errs"
	httputils "parley/parley/utils/http"
	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

// RealtimeController streams inserted messages of one conversation over a
// websocket as {"type":"INSERT","table":"messages","record":...} frames.
type RealtimeController struct {
	svc  *chat.Service
	feed feed.Feed
	// OriginPatterns are passed to websocket.Accept; nil allows same-origin only.
	OriginPatterns []string
}

func NewRealtimeController(svc *chat.Service, f feed.Feed) *RealtimeController {
	return &RealtimeController{svc: svc, feed: f}
}

func (c *RealtimeController) Serve(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		httputils.WriteError(w, errs.Required("conversation_id"))
		return
	}
	actor := middlewares.UserID(r.Context())
	if err := c.svc.Authorize(r.Context(), actor, conversationID); err != nil {
		httputils.WriteError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: c.OriginPatterns})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	// clients never send; CloseRead cancels ctx when they go away
	ctx := conn.CloseRead(r.Context())
	sub, err := c.feed.Subscribe(ctx, conversationID)
	if err != nil {
		logging.ErrorLogger.Error("realtime subscribe failed", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sub.Close()
	logging.AppLogger.Info("realtime client connected",
		zap.String("conversation_id", conversationID), zap.String("user_id", actor))

	for {
		select {
		case msg, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			ev := types.Event{Type: types.EventInsert, Table: types.TableMessages, Record: msg}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
