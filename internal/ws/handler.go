package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bj-service/internal/middleware"
	"bj-service/internal/service/game"
	pkgAuth "bj-service/pkg/auth"
	appErr "bj-service/pkg/errors"
	"bj-service/pkg/logger"
	"bj-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	gameSvc *game.Service
}

func NewHandler(gameSvc *game.Service) *Handler {
	return &Handler{gameSvc: gameSvc}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

func (h *Handler) HandleTableWS(c *gin.Context) {
	tableID, err := strconv.ParseInt(c.Param("tableId"), 10, 64)
	if err != nil || tableID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid table id")
		return
	}

	// The ws route sits outside the auth middleware.
	token, err := middleware.TokenFromRequest(c)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, err.Error())
		return
	}
	claims, err := pkgAuth.ParseUserToken(token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "invalid token")
		return
	}

	rt, err := h.gameSvc.GetRuntime(c.Request.Context(), tableID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New WebSocket connection",
		zap.Int64("tableID", tableID),
		zap.Int64("userID", claims.SubjectID),
	)

	client := newClient(conn, claims.SubjectID, claims.Nickname, rt)
	client.run()
}

type client struct {
	conn      *websocket.Conn
	userID    int64
	nickname  string
	rt        *game.TableRuntime
	outbound  chan game.OutgoingMessage
	replies   chan game.OutgoingMessage
	done      chan struct{}
	pingEvery time.Duration
}

func newClient(conn *websocket.Conn, userID int64, nickname string, rt *game.TableRuntime) *client {
	conn.SetReadLimit(1 << 16)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	return &client{
		conn:      conn,
		userID:    userID,
		nickname:  nickname,
		rt:        rt,
		outbound:  rt.Subscribe(userID),
		replies:   make(chan game.OutgoingMessage, 8),
		done:      make(chan struct{}),
		pingEvery: 25 * time.Second,
	}
}

func (c *client) run() {
	go c.writePump()
	c.readPump()
}

// readPump feeds commands to the runtime. Replies that concern only this
// connection go through c.replies so writePump stays the single writer.
func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.rt.Disconnect(context.Background(), c.userID, c.outbound)
		c.conn.Close()
	}()

	for {
		mt, message, err := c.conn.ReadMessage()
		if err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.Int64("userID", c.userID), zap.Int64("tableID", c.rt.TableID()))
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var incoming struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &incoming); err != nil {
			c.reply("error", gin.H{"message": "invalid payload"})
			continue
		}
		if incoming.Type == "" {
			continue
		}

		accepted, err := c.rt.HandleAction(context.Background(), c.userID, c.nickname, incoming.Type)
		switch {
		case errors.Is(err, appErr.ErrUnknownCommand):
			c.reply("error", gin.H{"message": err.Error()})
		case errors.Is(err, appErr.ErrTableFaulted), errors.Is(err, appErr.ErrTableClosed):
			c.reply("error", gin.H{"message": err.Error()})
			return
		case !accepted:
			c.reply("rejected", gin.H{"command": incoming.Type})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			if !c.write(msg) {
				return
			}
		case msg := <-c.replies:
			if !c.write(msg) {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) write(msg game.OutgoingMessage) bool {
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Log.Info("WS write error", zap.Error(err), zap.Int64("userID", c.userID), zap.Int64("tableID", c.rt.TableID()))
		return false
	}
	return true
}

func (c *client) reply(kind string, data interface{}) {
	select {
	case c.replies <- game.OutgoingMessage{Type: kind, Data: data}:
	default:
	}
}
