package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/envelope"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
)

type recordingTransport struct {
	mu      sync.Mutex
	chunks  []Chunk
	closes  int
	sendErr error
}

func (r *recordingTransport) Send(c Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.chunks = append(r.chunks, c)
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

func (r *recordingTransport) types() []ChunkType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChunkType, 0, len(r.chunks))
	for _, c := range r.chunks {
		out = append(out, c.Type)
	}
	return out
}

func terminalCount(chunks []Chunk) int {
	n := 0
	for _, c := range chunks {
		if c.Terminal() {
			n++
		}
	}
	return n
}

func TestPump_EndsWithExactlyOneTerminalChunk(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		write func(b *Builder)
		want  []ChunkType
	}{
		{
			name: "close emits done",
			write: func(b *Builder) {
				require.NoError(t, b.Token(ctx, "Designing"))
				require.NoError(t, b.Citation(ctx, RegulationCitation(envelope.FoundRegulation{ID: "r1", Relevance: 100, Source: envelope.SourceExact})))
				require.NoError(t, b.ToolCall(ctx, "circuit_designs", []string{"Shower"}))
				b.Close()
			},
			want: []ChunkType{TypeToken, TypeCitation, TypeToolCall, TypeDone},
		},
		{
			name: "recoverable error still ends with done",
			write: func(b *Builder) {
				require.NoError(t, b.Error(ctx, models.NewNonCompliantDesignError(1)))
				b.Close()
			},
			want: []ChunkType{TypeError, TypeDone},
		},
		{
			name: "terminal error replaces done",
			write: func(b *Builder) {
				require.NoError(t, b.Token(ctx, "Designing"))
				require.NoError(t, b.Fail(ctx, models.NewNoCircuitsError(false)))
				assert.ErrorIs(t, b.Token(ctx, "late"), ErrStreamClosed)
				b.Close()
			},
			want: []ChunkType{TypeToken, TypeError},
		},
		{
			name:  "empty stream is just done",
			write: func(b *Builder) { b.Close() },
			want:  []ChunkType{TypeDone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(8)
			tr := &recordingTransport{}
			tt.write(b)

			require.NoError(t, Pump(ctx, b, tr, nil))

			assert.Equal(t, tt.want, tr.types())
			assert.Equal(t, 1, terminalCount(tr.chunks))
			assert.Equal(t, 1, tr.closes)
		})
	}
}

func TestPump_ConcurrentWriter(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder(1)
	tr := &recordingTransport{}

	go func() {
		for i := 0; i < 50; i++ {
			_ = b.Token(ctx, "t")
		}
		b.Close()
	}()

	require.NoError(t, Pump(ctx, b, tr, nil))
	assert.Len(t, tr.chunks, 51)
	assert.Equal(t, TypeDone, tr.chunks[50].Type)
}

func TestPump_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &recordingTransport{}
	err := Pump(ctx, NewBuilder(1), tr, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, tr.closes)
}

func TestPump_TransportFailure(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder(4)
	require.NoError(t, b.Token(ctx, "x"))
	b.Close()

	tr := &recordingTransport{sendErr: errors.New("broken pipe")}
	err := Pump(ctx, b, tr, nil)
	assert.EqualError(t, err, "broken pipe")
	assert.Equal(t, 1, tr.closes)
}

func TestBuilder_CloseIsIdempotent(t *testing.T) {
	b := NewBuilder(2)
	b.Close()
	b.Close()
	assert.ErrorIs(t, b.Fail(context.Background(), models.NewInternalError(nil)), ErrStreamClosed)

	_, ok := <-b.Chunks()
	assert.False(t, ok)
}

func TestBuilder_SendRespectsContext(t *testing.T) {
	b := NewBuilder(1)
	require.NoError(t, b.Token(context.Background(), "fills the buffer"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Token(ctx, "blocked"), context.DeadlineExceeded)
}

func TestSSETransport(t *testing.T) {
	ctx := context.Background()
	rec := httptest.NewRecorder()
	tr := NewSSETransport(rec)

	b := NewBuilder(4)
	require.NoError(t, b.Token(ctx, "hello"))
	require.NoError(t, b.Error(ctx, models.NewIncompleteDesignError([]string{"Cooker"})))
	b.Close()
	require.NoError(t, Pump(ctx, b, tr, nil))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.True(t, rec.Flushed)

	body := rec.Body.String()
	require.True(t, strings.HasSuffix(body, "\n\n"))
	events := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, events, 3)

	var types []ChunkType
	for _, ev := range events {
		require.True(t, strings.HasPrefix(ev, "data: "), ev)
		var c Chunk
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(ev, "data: ")), &c))
		types = append(types, c.Type)
	}
	assert.Equal(t, []ChunkType{TypeToken, TypeError, TypeDone}, types)

	assert.ErrorIs(t, tr.Send(Chunk{Type: TypeToken}), ErrStreamClosed)
}

func TestWebSocketTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		ctx := context.Background()
		b := NewBuilder(4)
		_ = b.Token(ctx, "hello")
		_ = b.Fail(ctx, models.NewNoCircuitsError(true))
		_ = Pump(ctx, b, NewWebSocketTransport(conn, time.Second), nil)
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []Chunk
	for {
		var c Chunk
		if err := conn.ReadJSON(&c); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		got = append(got, c)
	}

	require.Len(t, got, 2)
	assert.Equal(t, TypeToken, got[0].Type)
	require.NotNil(t, got[1].Error)
	assert.Equal(t, models.ErrCodeNoCircuits, got[1].Error.Code)
	assert.False(t, got[1].Error.Recoverable)
}
