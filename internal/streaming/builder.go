package streaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
)

// ErrStreamClosed is returned when writing after Close or Fail
var ErrStreamClosed = errors.New("stream closed")

// Builder is the single writer side of a stream. Closing it without a
// terminal error is equivalent to emitting done; Pump writes the done chunk.
type Builder struct {
	ch        chan Chunk
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	now       func() time.Time
}

// NewBuilder creates a builder whose channel holds up to buffer chunks
func NewBuilder(buffer int) *Builder {
	if buffer < 1 {
		buffer = 1
	}
	return &Builder{
		ch:  make(chan Chunk, buffer),
		now: time.Now,
	}
}

// Chunks is the consumer side
func (b *Builder) Chunks() <-chan Chunk {
	return b.ch
}

func (b *Builder) Token(ctx context.Context, content string) error {
	return b.send(ctx, Chunk{Type: TypeToken, Content: content})
}

func (b *Builder) Citation(ctx context.Context, c Citation) error {
	return b.send(ctx, Chunk{Type: TypeCitation, Citation: &c})
}

func (b *Builder) ToolCall(ctx context.Context, name string, payload any) error {
	return b.send(ctx, Chunk{Type: TypeToolCall, ToolCall: &ToolCall{Name: name, Payload: payload}})
}

// Error emits a recoverable error. The stream continues and still ends with done.
func (b *Builder) Error(ctx context.Context, de *models.DesignError) error {
	return b.send(ctx, Chunk{Type: TypeError, Error: errorPayload(de, true)})
}

// Fail emits a terminal error and closes the builder
func (b *Builder) Fail(ctx context.Context, de *models.DesignError) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStreamClosed
	}
	err := b.push(ctx, Chunk{Type: TypeError, Error: errorPayload(de, false)})
	b.closeLocked()
	return err
}

// Close ends the stream. It never blocks and is safe to call repeatedly.
func (b *Builder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

func (b *Builder) send(ctx context.Context, c Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStreamClosed
	}
	return b.push(ctx, c)
}

// push must be called with mu held
func (b *Builder) push(ctx context.Context, c Chunk) error {
	c.Timestamp = b.now()
	select {
	case b.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Builder) closeLocked() {
	b.closeOnce.Do(func() {
		b.closed = true
		close(b.ch)
	})
}
