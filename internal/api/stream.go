package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"webpush-service/internal/models"
	"webpush-service/internal/services"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxReadBytes = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// sseChannel frames hub events as text/event-stream on a live response.
type sseChannel struct {
	ctx context.Context
	w   gin.ResponseWriter
}

func (s *sseChannel) WriteEvent(event string, data []byte) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

// Close is a no-op: the response ends when the handler returns.
func (s *sseChannel) Close() error {
	return nil
}

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsChannel sends hub events as JSON text frames.
type wsChannel struct {
	conn *websocket.Conn
}

func (w *wsChannel) WriteEvent(event string, data []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return w.conn.WriteJSON(wsFrame{Event: event, Data: data})
}

func (w *wsChannel) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	return w.conn.Close()
}

// Stream handles GET /stream?fingerprint= as Server-Sent Events.
func (h *Handler) Stream(c *gin.Context) {
	userID := sessionUser(c)
	fingerprint := c.Query("fingerprint")
	if err := h.accounts.VerifyDevice(c.Request.Context(), userID, fingerprint); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	conn, err := h.hub.Register(userID, fingerprint, &sseChannel{ctx: c.Request.Context(), w: c.Writer})
	if err != nil {
		h.fail(c, err)
		return
	}

	select {
	case <-c.Request.Context().Done():
	case <-conn.Done():
	}
	h.hub.Remove(conn)
}

// WebSocket handles GET /ws?fingerprint=. Events go out as {"event","data"}
// frames; anything the client sends is discarded.
func (h *Handler) WebSocket(c *gin.Context) {
	userID := sessionUser(c)
	fingerprint := c.Query("fingerprint")
	if err := h.accounts.VerifyDevice(c.Request.Context(), userID, fingerprint); err != nil {
		h.fail(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log(c).Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	conn, err := h.hub.Register(userID, fingerprint, &wsChannel{conn: ws})
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, models.PublicMessage(err))
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
		_ = ws.Close()
		return
	}

	go h.readPump(ws, conn)
	<-conn.Done()
	h.hub.Remove(conn)
}

// readPump drains client frames so close and disconnect are noticed.
func (h *Handler) readPump(ws *websocket.Conn, conn *services.Conn) {
	ws.SetReadLimit(wsMaxReadBytes)
	for {
		if _, _, err := ws.NextReader(); err != nil {
			h.hub.Remove(conn)
			return
		}
	}
}

var (
	_ services.Channel = (*sseChannel)(nil)
	_ services.Channel = (*wsChannel)(nil)
)
