// Package streaming encodes incremental design output as a sequence of
// independently decodable chunks and pushes them to a transport.
package streaming

import (
	"time"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/envelope"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
)

// ChunkType identifies the payload of a Chunk
type ChunkType string

const (
	TypeToken    ChunkType = "token"
	TypeCitation ChunkType = "citation"
	TypeToolCall ChunkType = "tool_call"
	TypeError    ChunkType = "error"
	TypeDone     ChunkType = "done"
)

// Citation references a regulation or design document used as evidence
type Citation struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Section   string  `json:"section,omitempty"`
	Content   string  `json:"content,omitempty"`
	Relevance float64 `json:"relevance"`
	Source    string  `json:"source,omitempty"`
}

// ToolCall is a structured sub-result such as extracted circuits or a
// chunk of finished designs
type ToolCall struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// ErrorPayload is the wire form of a classified error
type ErrorPayload struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Recoverable bool              `json:"recoverable"`
}

// Chunk is one message on the stream
type Chunk struct {
	Type      ChunkType     `json:"type"`
	Content   string        `json:"content,omitempty"`
	Citation  *Citation     `json:"citation,omitempty"`
	ToolCall  *ToolCall     `json:"tool_call,omitempty"`
	Error     *ErrorPayload `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Terminal reports whether c ends the stream
func (c Chunk) Terminal() bool {
	return c.Type == TypeDone || (c.Type == TypeError && c.Error != nil && !c.Error.Recoverable)
}

// RegulationCitation converts a retrieved regulation into a citation
func RegulationCitation(r envelope.FoundRegulation) Citation {
	return Citation{
		ID:        r.ID,
		Kind:      "regulation",
		Section:   r.Section,
		Content:   r.Content,
		Relevance: r.Relevance,
		Source:    string(r.Source),
	}
}

// DesignDocCitation converts a retrieved design document into a citation
func DesignDocCitation(d envelope.FoundDesignDoc) Citation {
	return Citation{
		ID:        d.ID,
		Kind:      "design_doc",
		Section:   d.Topic,
		Content:   d.Content,
		Relevance: d.Relevance,
		Source:    string(d.Source),
	}
}

func errorPayload(de *models.DesignError, recoverable bool) *ErrorPayload {
	return &ErrorPayload{
		Code:        de.Code,
		Message:     de.Message,
		Suggestions: de.Suggestions,
		Details:     de.Details,
		Recoverable: recoverable,
	}
}
