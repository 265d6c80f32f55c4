package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/upb/crossaudit-gateway/internal/alerts"
	"github.com/upb/crossaudit-gateway/utils"
	"go.uber.org/zap"
)

const (
	sseKeepAlive    = 30 * time.Second
	wsWriteDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS middleware
	},
}

// AlertSubscriber opens subscriptions on the alert bus
type AlertSubscriber interface {
	Subscribe(ctx context.Context) *alerts.Subscription
}

// AlertsHandler streams alerts to clients
type AlertsHandler struct {
	bus       AlertSubscriber
	keepAlive time.Duration
	logger    *zap.Logger
}

// NewAlertsHandler creates a new AlertsHandler
func NewAlertsHandler(bus AlertSubscriber, logger *zap.Logger) *AlertsHandler {
	return &AlertsHandler{
		bus:       bus,
		keepAlive: sseKeepAlive,
		logger:    logger,
	}
}

// HandleStream handles GET /alerts as a server-sent event stream. Each alert
// is one "data:" event; the stream ends when the client goes away.
func (h *AlertsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.WriteInternalServerError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	sub := h.bus.Subscribe(ctx)
	defer sub.Close()

	h.logger.Debug("alert stream opened", zap.String("remote_addr", r.RemoteAddr))

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent frames msg as a single SSE event. Every line of a multi-line
// alert gets its own data field so the client rejoins them with "\n".
func writeEvent(w io.Writer, msg string) error {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")

	var b strings.Builder
	for _, line := range strings.Split(msg, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

// HandleWebSocket handles GET /alerts/ws. Each alert is one text message.
func (h *AlertsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade alert websocket", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sub := h.bus.Subscribe(ctx)
	defer func() {
		cancel()
		sub.Close()
		conn.Close()
	}()

	// Client messages are ignored; reading detects the disconnect.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("alert websocket closed", zap.Error(err))
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				h.logger.Debug("alert websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
