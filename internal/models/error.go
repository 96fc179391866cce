package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error       string            `json:"error"`
	Code        string            `json:"code"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNoCircuits         = "NO_CIRCUITS"
	ErrCodeIncompleteDesign   = "INCOMPLETE_DESIGN"
	ErrCodeNonCompliantDesign = "NON_COMPLIANT_DESIGN"
	ErrCodeRAGSearchFailed    = "RAG_SEARCH_FAILED"
	ErrCodeAITimeout          = "AI_TIMEOUT"
	ErrCodeInvalidCircuits    = "INVALID_CIRCUITS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// DesignError is a classified, user-facing failure. Technical detail is carried
// separately from Message and never replaces it.
type DesignError struct {
	Code        string
	Message     string
	Suggestions []string
	Details     map[string]string
	Status      int
	Cause       error
}

func (e *DesignError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DesignError) Unwrap() error {
	return e.Cause
}

// Response converts the error into its API body
func (e *DesignError) Response() ErrorResponse {
	return ErrorResponse{
		Error:       e.Message,
		Code:        e.Code,
		Suggestions: e.Suggestions,
		Details:     e.Details,
	}
}

// WithDetail returns a copy with one technical detail added
func (e *DesignError) WithDetail(key, value string) *DesignError {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// NewInvalidInputError reports a malformed request
func NewInvalidInputError(detail string) *DesignError {
	return &DesignError{
		Code:    ErrCodeInvalidInput,
		Message: "The request could not be understood.",
		Suggestions: []string{
			"Send mode \"batch-design\" with an installation object",
			"Provide a description, a circuit list, or both",
		},
		Details: map[string]string{"reason": detail},
		Status:  http.StatusBadRequest,
	}
}

// NewNoCircuitsError reports that nothing could be designed. The suggestions
// differ depending on whether the caller sent any description at all.
func NewNoCircuitsError(hasDescription bool) *DesignError {
	if hasDescription {
		return &DesignError{
			Code:    ErrCodeNoCircuits,
			Message: "No circuits could be identified in the description.",
			Suggestions: []string{
				"Be more specific: '3 socket rings, 2 lighting circuits, 9.5kW shower'",
				"State the power rating of fixed appliances, e.g. '7kW EV charger'",
				"Add circuits to the circuit list directly",
			},
			Status: http.StatusUnprocessableEntity,
		}
	}
	return &DesignError{
		Code:    ErrCodeNoCircuits,
		Message: "No description or circuits were provided.",
		Suggestions: []string{
			"Describe the installation, e.g. 'three bed house with electric shower and EV charger'",
			"Or add at least one circuit to the circuit list",
		},
		Status: http.StatusBadRequest,
	}
}

// NewIncompleteDesignError reports circuits that were default-filled
func NewIncompleteDesignError(circuits []string) *DesignError {
	return &DesignError{
		Code:    ErrCodeIncompleteDesign,
		Message: fmt.Sprintf("%d circuit(s) could not be fully designed.", len(circuits)),
		Suggestions: []string{
			"Review the default values on the flagged circuits",
			"Retry the design for the flagged circuits only",
		},
		Details: map[string]string{"circuits": strings.Join(circuits, ", ")},
		Status:  http.StatusOK,
	}
}

// NewNonCompliantDesignError reports critical validation failures
func NewNonCompliantDesignError(criticalCount int) *DesignError {
	return &DesignError{
		Code:    ErrCodeNonCompliantDesign,
		Message: fmt.Sprintf("The design has %d critical compliance issue(s).", criticalCount),
		Suggestions: []string{
			"Fix every critical issue before installation",
			"Apply the suggested fix listed with each issue",
		},
		Status: http.StatusOK,
	}
}

// NewRAGSearchFailedError reports that every retrieval tier failed
func NewRAGSearchFailedError(cause error) *DesignError {
	return &DesignError{
		Code:    ErrCodeRAGSearchFailed,
		Message: "Regulation search is unavailable; designs were produced without supporting citations.",
		Suggestions: []string{
			"Check regulation references manually",
			"Retry later for cited designs",
		},
		Status: http.StatusServiceUnavailable,
		Cause:  cause,
	}
}

// NewAITimeoutError reports a completion service timeout
func NewAITimeoutError(cause error) *DesignError {
	return &DesignError{
		Code:    ErrCodeAITimeout,
		Message: "The design service took too long to respond.",
		Suggestions: []string{
			"Retry with fewer circuits",
			"Retry in a few moments",
		},
		Status: http.StatusGatewayTimeout,
		Cause:  cause,
	}
}

// NewInvalidCircuitsError reports a circuit that cannot be designed as given
func NewInvalidCircuitsError(index int, name, reason string) *DesignError {
	return &DesignError{
		Code:    ErrCodeInvalidCircuits,
		Message: "One or more circuits are invalid.",
		Suggestions: []string{
			"Give every circuit a positive load power in watts",
			"Use a supported load type such as socket, lighting, shower or cooker",
		},
		Details: map[string]string{
			"index":  fmt.Sprintf("%d", index),
			"name":   name,
			"reason": reason,
		},
		Status: http.StatusBadRequest,
	}
}

// NewInternalError wraps an unexpected failure
func NewInternalError(cause error) *DesignError {
	return &DesignError{
		Code:        ErrCodeInternalError,
		Message:     "An unexpected error occurred.",
		Suggestions: []string{"Retry the request", "Contact support if the problem persists"},
		Status:      http.StatusInternalServerError,
		Cause:       cause,
	}
}

// Classify maps any error onto the taxonomy. Already classified errors pass through.
func Classify(err error) *DesignError {
	if err == nil {
		return nil
	}
	var de *DesignError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAITimeoutError(err)
	}
	return NewInternalError(err)
}
