package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/streaming"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsRequestTimeout   = 30 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: wsHandshakeTimeout,
}

// StreamDesign handles WebSocket /api/ws/design
// @Summary Stream a batch design over WebSocket
// @Description The first client message is the design request. Every chunk is then sent as one JSON text message,
// @Description ending with exactly one terminal chunk followed by a normal close.
// @Tags design
// @Success 101 "Switching Protocols"
// @Router /ws/design [get]
func (h *Handler) StreamDesign(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.stream_design")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	var req models.DesignRequest
	_ = conn.SetReadDeadline(time.Now().Add(wsRequestTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		span.RecordError(err)
		h.logger.Info("invalid websocket design request", zap.Error(err))
		h.sendErrorToClient(ctx, conn, models.NewInvalidInputError("first message must be a design request"))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	span.SetAttributes(
		attribute.String("mode", req.Mode),
		attribute.String("session_id", req.SessionID),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The client only speaks once; any later read error means it went away
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("websocket client read ended", zap.Error(err))
				}
				cancel()
				return
			}
		}
	}()

	h.stream(ctx, req, streaming.NewWebSocketTransport(conn, wsWriteTimeout))
	<-readerDone
}

// sendErrorToClient writes a single terminal error chunk and closes conn
func (h *Handler) sendErrorToClient(ctx context.Context, conn *websocket.Conn, de *models.DesignError) {
	b := streaming.NewBuilder(1)
	if err := b.Fail(ctx, de); err != nil {
		h.logger.Warn("failed to build error chunk", zap.Error(err))
	}
	if err := streaming.Pump(ctx, b, streaming.NewWebSocketTransport(conn, wsWriteTimeout), h.logger); err != nil {
		h.logger.Warn("failed to send error to client", zap.Error(err))
	}
}
