package api

import (
	"net/http"
	"strconv"

	"creditchat/backend/internal/models"
	"creditchat/backend/internal/relay"
	apperrors "creditchat/backend/pkg/errors"
	"creditchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChatHandler serves the chat send and response-stream endpoints.
type ChatHandler struct {
	relay    *relay.Service
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewChatHandler(r *relay.Service, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Send debits the chat cost and appends the user turn. The assistant's
// reply is not part of this response; the client opens a stream for it.
func (h *ChatHandler) Send(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	turn, balance, err := h.relay.SendMessage(c.Request.Context(), CurrentUser(c), id, req.Message)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"turn_id": turn.ID,
		"credits": balance,
	})
}

// StreamSSE relays the assistant response as Server-Sent Events. A client
// disconnect stops the forwarding loop only; the relay keeps accumulating
// and persists the full reply server-side.
func (h *ChatHandler) StreamSSE(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}
	cursor := queryID(c, "cursor_id")

	sink := relay.NewChannelSink(64)
	if err := h.relay.OpenStream(c.Request.Context(), CurrentUser(c), id, cursor, sink); err != nil {
		c.Error(err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case ev, ok := <-sink.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case relay.EventFragment:
				c.SSEvent("message", ev.Data)
			case relay.EventDone:
				c.SSEvent("message", "[DONE]")
			case relay.EventError:
				c.SSEvent("error", ev.Data)
			}
			c.Writer.Flush()
		}
	}
}

// wsEvent is the wire shape pushed over the WebSocket transport.
type wsEvent struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// StreamWS relays the assistant response over a WebSocket.
func (h *ChatHandler) StreamWS(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}
	cursor := queryID(c, "cursor_id")

	sink := relay.NewChannelSink(64)
	if err := h.relay.OpenStream(c.Request.Context(), CurrentUser(c), id, cursor, sink); err != nil {
		c.Error(err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	for ev := range sink.Events() {
		var msg wsEvent
		switch ev.Type {
		case relay.EventFragment:
			msg = wsEvent{Type: "fragment", Data: ev.Data}
		case relay.EventDone:
			msg = wsEvent{Type: "done"}
		case relay.EventError:
			msg = wsEvent{Type: "error", Data: ev.Data}
		}
		if err := conn.WriteJSON(msg); err != nil {
			// Reader went away; the relay finishes on its own.
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func queryID(c *gin.Context, name string) uint {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}
