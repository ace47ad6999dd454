package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/coinsight-go/internal/analysis"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamBuffer     = 64
)

// StreamMessage is one frame on the stage event socket. The first frame is
// a status snapshot; the rest carry sequencer events.
type StreamMessage struct {
	Kind   string           `json:"kind"`
	Status *analysis.Status `json:"status,omitempty"`
	Event  *analysis.Event  `json:"event,omitempty"`
}

// StreamHandler pushes stage events for the caller's workflow over a
// WebSocket.
type StreamHandler struct {
	workflows WorkflowSource
	upgrader  websocket.Upgrader
	logger    *logrus.Logger
}

func NewStreamHandler(workflows WorkflowSource, allowedOrigins []string, logger *logrus.Logger) *StreamHandler {
	if logger == nil {
		logger = logrus.New()
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &StreamHandler{
		workflows: workflows,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

func (h *StreamHandler) Stream(c *gin.Context) {
	w := h.workflows.Workflow(currentUser(c))
	if w == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "analysis unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Subscribers run while the sequencer holds its delivery lock, so the
	// callback must never block. A client too slow to drain the buffer is
	// disconnected.
	events := make(chan analysis.Event, streamBuffer)
	overflow := make(chan struct{})
	var overflowed bool
	unsubscribe := w.Subscribe(func(ev analysis.Event) {
		if overflowed {
			return
		}
		select {
		case events <- ev:
		default:
			overflowed = true
			close(overflow)
		}
	})
	defer unsubscribe()

	status := w.Status()
	if err := h.write(conn, StreamMessage{Kind: "status", Status: &status}); err != nil {
		return
	}

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			if err := h.write(conn, StreamMessage{Kind: "event", Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-overflow:
			h.logger.WithField("user_id", currentUser(c)).Warn("Stage stream client too slow, closing")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"),
				time.Now().Add(streamWriteWait))
			return
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(msg)
}

// readPump drains client frames so pongs and close frames are processed.
func (h *StreamHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
