// Package completion talks to an OpenAI-compatible chat completions API,
// including forced tool calls for structured output.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a completion exceeds its hard timeout
	ErrTimeout = errors.New("completion timed out")
	// ErrNoToolCall is returned when a forced tool call was not made
	ErrNoToolCall = errors.New("model did not call the requested tool")
)

// Client is the completion collaborator used by the design agents
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call. Parameters is a JSON schema.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

type Request struct {
	Model    string
	Messages []Message
	Tools    []Tool
	// ToolChoice forces a call to the named tool when set
	ToolChoice  string
	MaxTokens   int
	Temperature float64
	// Timeout bounds the whole call including retries
	Timeout time.Duration
	// OnRetry is invoked before each retry attempt
	OnRetry func(err error)
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// ToolCall returns the first call to the named tool
func (r *Response) ToolCall(name string) (*ToolCall, error) {
	if r == nil {
		return nil, ErrNoToolCall
	}
	for i := range r.ToolCalls {
		if r.ToolCalls[i].Name == name {
			return &r.ToolCalls[i], nil
		}
	}
	return nil, ErrNoToolCall
}
