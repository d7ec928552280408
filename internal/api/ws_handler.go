package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"prepkitty/internal/api/middleware"
	"prepkitty/internal/auth"
	"prepkitty/internal/tasks"
)

const (
	wsAuthTimeout   = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsControlWindow = 5 * time.Second
)

// WsHandler 负责 WebSocket 鉴权，并把 Worker 发布的通知转发给客户端。
type WsHandler struct {
	redisClient    redis.UniversalClient
	validator      middleware.TokenValidator
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。allowedOrigins 为空时只接受同源请求。
func NewWsHandler(redisClient redis.UniversalClient, validator middleware.TokenValidator, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WsHandler{
		redisClient:    redisClient,
		validator:      validator,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin 未配置 CORS 白名单时只允许同源；无 Origin 头的非浏览器客户端放行。
func (h *WsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	switch {
	case origin == "":
		return true
	case len(h.allowedOrigins) > 0:
		return slices.Contains(h.allowedOrigins, origin)
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsAuthError 携带关闭帧的状态码与原因。
type wsAuthError struct {
	reason string
	err    error
}

func (e *wsAuthError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *wsAuthError) Unwrap() error { return e.err }

// authenticate 解析首条消息，必须是 {"type":"auth","token":"<access token>"}。
func (h *WsHandler) authenticate(message []byte) (uint, error) {
	var msg wsAuthMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return 0, &wsAuthError{reason: "invalid auth payload", err: err}
	}
	if msg.Type != "auth" || msg.Token == "" {
		return 0, &wsAuthError{reason: "auth required", err: errors.New("first message must be an auth message")}
	}
	claims, err := h.validator.ValidateToken(msg.Token)
	if err != nil {
		return 0, &wsAuthError{reason: "unauthorized", err: err}
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return 0, &wsAuthError{reason: "access token required", err: fmt.Errorf("token type %q", claims.TokenType)}
	}
	if claims.MustChangePassword {
		return 0, &wsAuthError{reason: "password change required", err: errors.New("password change pending")}
	}
	return claims.UserID, nil
}

// HandleConnection 升级连接，等待鉴权后订阅用户通知频道。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	_, first, err := conn.ReadMessage()
	if err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "auth timeout")
		log.Info("websocket closed before auth", slog.Any("error", err))
		return
	}
	userID, err := h.authenticate(first)
	if err != nil {
		var authErr *wsAuthError
		reason := "unauthorized"
		if errors.As(err, &authErr) {
			reason = authErr.reason
		}
		writeClose(conn, websocket.ClosePolicyViolation, reason)
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	log = log.With(slog.Uint64("user_id", uint64(userID)))
	if err := conn.WriteJSON(gin.H{"type": "auth_ok"}); err != nil {
		log.Info("write auth ack failed", slog.Any("error", err))
		return
	}
	log.Info("websocket authenticated")

	errCh := make(chan error, 2)
	go h.readLoop(conn, errCh)
	go h.subscribeLoop(ctx, conn, userID, errCh, log)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Info("websocket connection closed", slog.Any("reason", err))
	}
}

// readLoop 丢弃鉴权后的客户端消息，只用于感知断开。
func (h *WsHandler) readLoop(conn *websocket.Conn, errCh chan<- error) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			errCh <- fmt.Errorf("read message: %w", err)
			return
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsControlWindow))
}

func (h *WsHandler) subscribeLoop(ctx context.Context, conn *websocket.Conn, userID uint, errCh chan<- error, log *slog.Logger) {
	channel := tasks.NotifyChannel(userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				errCh <- errors.New("pubsub channel closed")
				return
			}
			log.Debug("forwarding notification", slog.String("channel", channel))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				errCh <- fmt.Errorf("write message: %w", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsControlWindow)); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				return
			}
		}
	}
}
