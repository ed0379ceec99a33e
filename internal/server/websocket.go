package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bloggy/backend/internal/articles"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	clientEventJoinArticle  = "joinArticle"
	clientEventLeaveArticle = "leaveArticle"
	clientEventPing         = "ping"
	serverEventPong         = "pong"

	websocketWriteWait   = 10 * time.Second
	websocketPongWait    = 60 * time.Second
	websocketPingPeriod  = (websocketPongWait * 9) / 10
	websocketMaxReadSize = 4096
)

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type articleRoomRequest struct {
	ArticleID string `json:"articleId"`
}

type pongPayload struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	ClientID  string `json:"clientId"`
}

func (h *httpHandler) handleWebSocket(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = strings.TrimSpace(c.Query(accessTokenQueryKey))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("unauthorized", "auth.missing_token", errInvalidAuthorization.Error()))
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("unauthorized", "auth.invalid_token", "unauthorized"))
		return
	}

	conn, err := websocketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	subscription := h.realtime.Subscribe(claims.Subject)
	client := &websocketClient{
		conn:         conn,
		subscription: subscription,
		userID:       claims.Subject,
		logger:       h.logger,
	}
	h.logger.Info("websocket client connected",
		zap.String("user_id", claims.Subject),
		zap.Int64("client_id", subscription.subscriber.id),
		zap.Int("connections", h.realtime.Connections()))

	go client.writeLoop()
	client.readLoop()
}

type websocketClient struct {
	conn         *websocket.Conn
	subscription *RealtimeSubscription
	userID       string
	logger       *zap.Logger
}

// readLoop handles client messages until the connection fails, then detaches
// the subscription, which ends writeLoop.
func (w *websocketClient) readLoop() {
	defer func() {
		w.subscription.Unsubscribe()
		w.logger.Info("websocket client disconnected", zap.String("user_id", w.userID))
	}()

	w.conn.SetReadLimit(websocketMaxReadSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(websocketPongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(websocketPongWait))
	})

	for {
		var message clientMessage
		if err := w.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Warn("websocket read failed", zap.String("user_id", w.userID), zap.Error(err))
			}
			return
		}
		w.handle(message)
	}
}

func (w *websocketClient) handle(message clientMessage) {
	switch message.Event {
	case clientEventJoinArticle:
		if articleID := parseArticleID(message.Data); articleID != "" {
			w.subscription.Join(articles.ArticleRoom(articleID))
		}
	case clientEventLeaveArticle:
		if articleID := parseArticleID(message.Data); articleID != "" {
			w.subscription.Leave(articles.ArticleRoom(articleID))
		}
	case clientEventPing:
		w.subscription.Send(RealtimeMessage{Event: serverEventPong, Data: pongPayload{
			Message:   "Pong!",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			ClientID:  strconv.FormatInt(w.subscription.subscriber.id, 10),
		}})
	default:
		w.logger.Debug("unknown websocket event", zap.String("event", message.Event))
	}
}

func (w *websocketClient) writeLoop() {
	ticker := time.NewTicker(websocketPingPeriod)
	defer func() {
		ticker.Stop()
		_ = w.conn.Close()
	}()

	for {
		select {
		case message, ok := <-w.subscription.Messages():
			_ = w.conn.SetWriteDeadline(time.Now().Add(websocketWriteWait))
			if !ok {
				_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := w.conn.WriteJSON(message); err != nil {
				w.logger.Warn("websocket write failed", zap.String("user_id", w.userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(websocketWriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// parseArticleID accepts either a bare string or {"articleId": "..."}.
func parseArticleID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var articleID string
	if err := json.Unmarshal(raw, &articleID); err == nil {
		return strings.TrimSpace(articleID)
	}
	var request articleRoomRequest
	if err := json.Unmarshal(raw, &request); err == nil {
		return strings.TrimSpace(request.ArticleID)
	}
	return ""
}
