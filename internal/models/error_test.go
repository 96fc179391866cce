package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNoCircuitsError(t *testing.T) {
	t.Run("no description suggests describing the installation", func(t *testing.T) {
		err := NewNoCircuitsError(false)
		assert.Equal(t, ErrCodeNoCircuits, err.Code)
		assert.Equal(t, http.StatusBadRequest, err.Status)
		require.NotEmpty(t, err.Suggestions)
		assert.Contains(t, err.Suggestions[0], "Describe the installation")
		for _, s := range err.Suggestions {
			assert.NotContains(t, s, "Be more specific")
		}
	})

	t.Run("ambiguous description suggests being more specific", func(t *testing.T) {
		err := NewNoCircuitsError(true)
		assert.Equal(t, ErrCodeNoCircuits, err.Code)
		require.NotEmpty(t, err.Suggestions)
		assert.Contains(t, err.Suggestions[0], "Be more specific")
	})
}

func TestNewIncompleteDesignError(t *testing.T) {
	de := NewIncompleteDesignError([]string{"Kitchen Ring", "Shower"})
	assert.Equal(t, ErrCodeIncompleteDesign, de.Code)
	assert.Equal(t, "Kitchen Ring, Shower", de.Details["circuits"])
	assert.Contains(t, de.Message, "2 circuit(s)")

	assert.Equal(t, "", NewIncompleteDesignError(nil).Details["circuits"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "classified passes through", err: NewNoCircuitsError(true), wantCode: ErrCodeNoCircuits},
		{name: "wrapped classified", err: fmt.Errorf("outer: %w", NewInvalidInputError("x")), wantCode: ErrCodeInvalidInput},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), wantCode: ErrCodeAITimeout},
		{name: "anything else", err: errors.New("boom"), wantCode: ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, Classify(tt.err).Code)
		})
	}

	assert.Nil(t, Classify(nil))
}

func TestDesignError_ResponseKeepsMessageSeparateFromDetails(t *testing.T) {
	err := NewRAGSearchFailedError(errors.New("connection refused")).WithDetail("tier", "vector")
	resp := err.Response()

	assert.Equal(t, ErrCodeRAGSearchFailed, resp.Code)
	assert.NotContains(t, resp.Error, "connection refused")
	assert.Equal(t, "vector", resp.Details["tier"])
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDesignRequest_Validate(t *testing.T) {
	t.Run("unsupported mode", func(t *testing.T) {
		req := DesignRequest{Mode: "quiz"}
		err := req.Validate()
		require.Error(t, err)
		assert.Equal(t, ErrCodeInvalidInput, Classify(err).Code)
	})

	t.Run("defaults installation class", func(t *testing.T) {
		req := DesignRequest{Mode: ModeBatchDesign}
		require.NoError(t, req.Validate())
		assert.Equal(t, InstallationDomestic, req.Installation.Class)
	})

	t.Run("negative power is an invalid circuit", func(t *testing.T) {
		req := DesignRequest{
			Mode:     ModeBatchDesign,
			Circuits: []ExtractedCircuit{{Name: "Bad", LoadType: LoadSocket, LoadPowerW: -1}},
		}
		err := req.Validate()
		require.Error(t, err)
		assert.Equal(t, ErrCodeInvalidCircuits, Classify(err).Code)
	})
	t.Run("quantity above the bound is an invalid circuit", func(t *testing.T) {
		req := DesignRequest{
			Mode:     ModeBatchDesign,
			Circuits: []ExtractedCircuit{{Name: "Sockets", LoadType: LoadSocket, LoadPowerW: 7200, Quantity: 1000000000}},
		}
		err := req.Validate()
		require.Error(t, err)
		de := Classify(err)
		assert.Equal(t, ErrCodeInvalidCircuits, de.Code)
		assert.Contains(t, de.Details["reason"], "at most")
	})

	t.Run("quantity at the bound is accepted", func(t *testing.T) {
		req := DesignRequest{
			Mode:     ModeBatchDesign,
			Circuits: []ExtractedCircuit{{Name: "Sockets", LoadType: LoadSocket, LoadPowerW: 7200, Quantity: MaxQuantity}},
		}
		assert.NoError(t, req.Validate())
	})
}
