package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Transport delivers chunks to the caller
type Transport interface {
	Send(c Chunk) error
	Close() error
}

// Pump drains b into t until the builder closes, a terminal chunk is written
// or ctx is cancelled. Exactly one terminal chunk is written unless the
// transport itself fails. t is closed exactly once before Pump returns.
func Pump(ctx context.Context, b *Builder, t Transport, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	defer func() {
		if err := t.Close(); err != nil {
			logger.Debug("failed to close transport", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-b.Chunks():
			if !ok {
				return t.Send(Chunk{Type: TypeDone, Timestamp: b.now()})
			}
			if err := t.Send(c); err != nil {
				logger.Warn("failed to write stream chunk", zap.String("type", string(c.Type)), zap.Error(err))
				return err
			}
			if c.Terminal() {
				return nil
			}
		}
	}
}

// SSETransport writes chunks as server-sent events, one "data: <json>" line
// followed by a blank line per chunk
type SSETransport struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	once    sync.Once
	closed  bool
}

// NewSSETransport sets the event-stream headers on w
func NewSSETransport(w http.ResponseWriter) *SSETransport {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)
	return &SSETransport{w: w, flusher: flusher}
}

func (t *SSETransport) Send(c Chunk) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrStreamClosed
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if t.flusher != nil {
		t.flusher.Flush()
	}
	return nil
}

// Close marks the transport closed. The HTTP response ends when the handler returns.
func (t *SSETransport) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
	})
	return nil
}

// WebSocketTransport writes each chunk as one JSON text message
type WebSocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	once         sync.Once
	closeErr     error
}

func NewWebSocketTransport(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *WebSocketTransport) Send(c Chunk) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if err := t.conn.WriteJSON(c); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	return nil
}

// Close sends a normal close frame and closes the connection
func (t *WebSocketTransport) Close() error {
	t.once.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete"), deadline)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
