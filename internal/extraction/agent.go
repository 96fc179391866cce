// Package extraction turns a free-text installation description into a list
// of circuits, asking the completion service first and falling back to local
// pattern matching.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/completion"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/typeguard"
)

// ToolName is the forced tool the completion service must call
const ToolName = "extract_circuits"

// Method records which path produced a Result
type Method string

const (
	MethodAI       Method = "ai"
	MethodFallback Method = "fallback"
	MethodNone     Method = "none"
)

type Result struct {
	Circuits                []models.ExtractedCircuit `json:"circuits"`
	SpecialRequirements     []string                  `json:"special_requirements,omitempty"`
	InstallationConstraints []string                  `json:"installation_constraints,omitempty"`
	Method                  Method                    `json:"method"`
	// FallbackReason is set when the primary path was abandoned
	FallbackReason string `json:"fallback_reason,omitempty"`
	Tokens         int    `json:"tokens,omitempty"`
}

type state int

const (
	statePrimary state = iota
	stateFallback
)

// Agent runs extraction. A nil completion client means fallback only.
type Agent struct {
	client    completion.Client
	model     string
	timeout   time.Duration
	validator *typeguard.SchemaValidator
	schema    json.RawMessage
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewAgent(client completion.Client, model string, timeout time.Duration, logger *zap.Logger) (*Agent, error) {
	schema, err := toolSchema()
	if err != nil {
		return nil, err
	}
	validator, err := typeguard.NewSchemaValidator(schema)
	if err != nil {
		return nil, fmt.Errorf("extraction schema: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		client:    client,
		model:     model,
		timeout:   timeout,
		validator: validator,
		schema:    schema,
		logger:    logger,
		tracer:    otel.Tracer("extraction-agent"),
	}, nil
}

// Extract always returns a result. An empty description yields no circuits
// and Method none. Quantities are expanded into numbered circuits.
func (a *Agent) Extract(ctx context.Context, description string) *Result {
	ctx, span := a.tracer.Start(ctx, "extraction.extract")
	defer span.End()

	if strings.TrimSpace(description) == "" {
		return &Result{Method: MethodNone}
	}

	st := statePrimary
	reason := ""
	for {
		switch st {
		case statePrimary:
			if a.client == nil {
				reason = "no completion client configured"
				st = stateFallback
				continue
			}
			res, err := a.primary(ctx, description)
			if err != nil {
				reason = err.Error()
				a.logger.Warn("extraction falling back to pattern matching", zap.Error(err))
				st = stateFallback
				continue
			}
			span.SetAttributes(attribute.String("method", string(MethodAI)), attribute.Int("circuits", len(res.Circuits)))
			return res

		case stateFallback:
			circuits := ExpandQuantities(ExtractFallback(description))
			method := MethodFallback
			if len(circuits) == 0 {
				method = MethodNone
			}
			span.SetAttributes(attribute.String("method", string(method)), attribute.Int("circuits", len(circuits)))
			return &Result{Circuits: circuits, Method: method, FallbackReason: reason}
		}
	}
}

func (a *Agent) primary(ctx context.Context, description string) (*Result, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.client.Complete(ctx, completion.Request{
		Model: a.model,
		Messages: []completion.Message{
			{Role: "system", Content: systemPrompt()},
			{Role: "user", Content: description},
		},
		Tools: []completion.Tool{{
			Name:        ToolName,
			Description: "Record every circuit described by the user",
			Parameters:  a.schema,
		}},
		ToolChoice:  ToolName,
		Temperature: 0,
		Timeout:     a.timeout,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, completion.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", completion.ErrTimeout, err)
		}
		return nil, err
	}

	call, err := resp.ToolCall(ToolName)
	if err != nil {
		return nil, err
	}
	payload, err := a.validator.Decode(call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("malformed tool call: %w", err)
	}

	raw, _ := typeguard.Slice(payload["circuits"])
	var circuits []models.ExtractedCircuit
	for i, item := range raw {
		m, ok := typeguard.Map(item)
		if !ok {
			continue
		}
		c, err := typeguard.CircuitFromMap(m)
		if err != nil {
			a.logger.Debug("dropping extracted circuit", zap.Int("index", i), zap.Error(err))
			continue
		}
		circuits = append(circuits, c)
	}
	if len(circuits) == 0 {
		return nil, errors.New("tool call contained no usable circuits")
	}

	return &Result{
		Circuits:                ExpandQuantities(circuits),
		SpecialRequirements:     stringList(payload["special_requirements"]),
		InstallationConstraints: stringList(payload["installation_constraints"]),
		Method:                  MethodAI,
		Tokens:                  resp.Usage.TotalTokens,
	}, nil
}

func stringList(value any) []string {
	items, ok := typeguard.Slice(value)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := typeguard.String(item); ok {
			out = append(out, s)
		}
	}
	return out
}

func toolSchema() (json.RawMessage, error) {
	loadTypes := make([]string, 0, len(models.LoadTypes))
	for _, lt := range models.LoadTypes {
		loadTypes = append(loadTypes, string(lt))
	}
	locations := make([]string, 0, len(models.SpecialLocations))
	for _, l := range models.SpecialLocations {
		locations = append(locations, string(l))
	}

	schema := map[string]any{
		"type":     "object",
		"required": []string{"circuits"},
		"properties": map[string]any{
			"circuits": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"name", "load_type", "load_power_w"},
					"properties": map[string]any{
						"name":             map[string]any{"type": "string", "minLength": 1},
						"load_type":        map[string]any{"type": "string", "enum": loadTypes},
						"load_power_w":     map[string]any{"type": "number", "exclusiveMinimum": 0},
						"quantity":         map[string]any{"type": "integer", "minimum": 1, "maximum": models.MaxQuantity},
						"cable_length_m":   map[string]any{"type": "number", "minimum": 0},
						"phases":           map[string]any{"type": "string", "enum": []string{string(models.PhaseSingle), string(models.PhaseThree)}},
						"special_location": map[string]any{"type": "string", "enum": locations},
					},
				},
			},
			"special_requirements":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"installation_constraints": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
	out, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal extraction schema: %w", err)
	}
	return out, nil
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("Extract every electrical circuit from the installation description by calling ")
	b.WriteString(ToolName)
	b.WriteString(". Use quantity for repeated circuits. When power or cable length is not stated use these defaults:\n")
	for _, lt := range models.LoadTypes {
		d := typeguard.DefaultsFor(lt)
		fmt.Fprintf(&b, "- %s: %.0f W, %.0f m\n", lt, d.PowerW, d.CableLengthM)
	}
	b.WriteString("Assume single phase unless three phase is stated. Showers are in bathrooms; EV chargers and garden circuits are outdoor.")
	return b.String()
}
