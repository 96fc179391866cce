package orchestration

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/retrieval"
)

// maxEvidenceChars bounds each regulation excerpt placed in the prompt
const maxEvidenceChars = 600

func designSystemPrompt(inst models.Installation) string {
	var b strings.Builder
	b.WriteString("You are an electrical design engineer working to BS 7671. ")
	fmt.Fprintf(&b, "Design every circuit for a %s installation", inst.Class)
	if inst.Earthing != "" {
		fmt.Fprintf(&b, " with %s earthing", inst.Earthing)
	}
	b.WriteString(". For each circuit calculate design current, cable size, CPC size, protective device, voltage drop and Zs. ")
	b.WriteString("Cite regulation numbers in the justifications. Return the circuits in the order given by calling ")
	b.WriteString(DesignToolName)
	b.WriteString(".")
	return b.String()
}

func designUserPrompt(circuits []models.ExtractedCircuit, inst models.Installation, res *retrieval.Result) (string, error) {
	payload, err := json.Marshal(struct {
		Installation models.Installation      `json:"installation"`
		Circuits     []models.ExtractedCircuit `json:"circuits"`
	}{inst, circuits})
	if err != nil {
		return "", fmt.Errorf("failed to marshal circuits: %w", err)
	}

	var b strings.Builder
	b.WriteString("Circuits to design:\n")
	b.Write(payload)

	if res != nil && len(res.Regulations) > 0 {
		b.WriteString("\n\nRelevant regulations:\n")
		for _, r := range res.Regulations {
			fmt.Fprintf(&b, "- [%s] %s\n", r.ID, excerpt(r.Content))
		}
	}
	if res != nil && len(res.DesignDocs) > 0 {
		b.WriteString("\nDesign guidance:\n")
		for _, d := range res.DesignDocs {
			fmt.Fprintf(&b, "- %s: %s\n", d.Topic, excerpt(d.Content))
		}
	}
	return b.String(), nil
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxEvidenceChars {
		return s
	}
	cut := strings.LastIndex(s[:maxEvidenceChars], " ")
	if cut <= 0 {
		cut = maxEvidenceChars
	}
	return s[:cut] + "..."
}

// designToolSchema only requires a name per circuit. Missing engineering
// fields are filled by typeguard.FillDefaults.
func designToolSchema() (json.RawMessage, error) {
	number := map[string]any{"type": "number"}
	text := map[string]any{"type": "string"}

	schema := map[string]any{
		"type":     "object",
		"required": []string{"circuits"},
		"properties": map[string]any{
			"circuits": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"name"},
					"properties": map[string]any{
						"name":           text,
						"load_type":      text,
						"load_power_w":   number,
						"cable_length_m": number,
						"topology":       map[string]any{"type": "string", "enum": []string{"ring", "radial"}},
						"cable_size_mm2": number,
						"cpc_size_mm2":   number,
						"cable_type":     text,
						"rcd_protected":  map[string]any{"type": "boolean"},
						"protection_device": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"type":          text,
								"rating_a":      number,
								"curve":         text,
								"ka_rating":     number,
								"rcd_rating_ma": number,
							},
						},
						"calculations": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"design_current_a": number,
								"cable_capacity_a": number,
								"voltage_drop_v":   number,
								"voltage_drop_pct": number,
								"zs":               number,
								"max_zs":           number,
							},
						},
						"justifications": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"cable":      text,
								"protection": text,
								"rcd":        text,
								"general":    text,
							},
						},
					},
				},
			},
		},
	}
	out, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal design schema: %w", err)
	}
	return out, nil
}
