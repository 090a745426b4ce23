package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"todo-system/internal/services"
	"todo-system/internal/transport/httpdto"
	"todo-system/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type TokenParser interface {
	ParseAccessToken(token string) (services.AccessClaims, error)
}

// ClientMessage is a control message sent by the browser.
type ClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

type serverMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Handler struct {
	auth       TokenParser
	hub        *Hub
	authorizer *ChannelAuthorizer
	upgrader   websocket.Upgrader
	logger     *logger.Logger
}

// NewHandler accepts upgrades from the given origins. Requests without an
// Origin header are not browser requests and are always accepted.
func NewHandler(auth TokenParser, hub *Hub, trustedOrigins []string, l *logger.Logger) *Handler {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	allowed := make(map[string]bool, len(trustedOrigins))
	for _, o := range trustedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &Handler{
		auth:       auth,
		hub:        hub,
		authorizer: NewChannelAuthorizer(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		logger: l,
	}
}

func (h *Handler) Connect(c *gin.Context) {
	token := extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	claims, err := h.auth.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	userID := strings.TrimSpace(claims.Subject)
	client := NewClient(conn, userID)
	for _, channel := range h.authorizer.DefaultChannels(userID) {
		client.Subscribe(channel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(ctx)

	h.readLoop(client)
	h.hub.Unregister(client)
}

func (h *Handler) readLoop(client *Client) {
	conn := client.Conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn(context.Background(), "websocket unexpected close",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleMessage(client, data)
	}
}

func (h *Handler) handleMessage(client *Client, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(client, serverMessage{Type: "error", Error: "invalid message"})
		return
	}

	switch msg.Type {
	case "ping":
		h.reply(client, serverMessage{Type: "pong"})
	case "subscribe":
		if !h.authorizer.CanSubscribe(client.UserID, msg.Channel) {
			h.reply(client, serverMessage{Type: "error", Channel: msg.Channel, Error: "forbidden"})
			return
		}
		h.hub.Subscribe(client, msg.Channel)
		h.reply(client, serverMessage{Type: "subscribed", Channel: msg.Channel})
	case "unsubscribe":
		h.hub.Unsubscribe(client, msg.Channel)
		h.reply(client, serverMessage{Type: "unsubscribed", Channel: msg.Channel})
	default:
		h.reply(client, serverMessage{Type: "error", Error: "unknown message type"})
	}
}

func (h *Handler) reply(client *Client, msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	client.SendMessage(payload)
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
