package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/completion"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
)

type fakeCompletion struct {
	resp  *completion.Response
	err   error
	delay time.Duration
	calls int
	last  completion.Request
}

func (f *fakeCompletion) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	f.calls++
	f.last = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func toolResponse(args string) *completion.Response {
	return &completion.Response{
		ToolCalls: []completion.ToolCall{{ID: "call_1", Name: ToolName, Arguments: json.RawMessage(args)}},
		Usage:     completion.Usage{TotalTokens: 321},
	}
}

const referenceDescription = "4 socket rings, 2 lighting circuits, a 9.5kW shower"

func countByType(circuits []models.ExtractedCircuit) map[models.LoadType]int {
	out := map[models.LoadType]int{}
	for _, c := range circuits {
		out[c.LoadType]++
	}
	return out
}

func assertReferenceCircuits(t *testing.T, circuits []models.ExtractedCircuit) {
	t.Helper()
	counts := countByType(circuits)
	assert.Equal(t, 4, counts[models.LoadSocket])
	assert.Equal(t, 2, counts[models.LoadLighting])
	assert.Equal(t, 1, counts[models.LoadShower])
	assert.Len(t, circuits, 7)
	for _, c := range circuits {
		assert.Equal(t, 1, c.Quantity)
		if c.LoadType == models.LoadShower {
			assert.Equal(t, 9500.0, c.LoadPowerW)
		}
	}
}

func newAgent(t *testing.T, client completion.Client) *Agent {
	t.Helper()
	a, err := NewAgent(client, "gpt-4o-mini", 100*time.Millisecond, nil)
	require.NoError(t, err)
	return a
}

func TestExtract_Primary(t *testing.T) {
	client := &fakeCompletion{resp: toolResponse(`{
		"circuits": [
			{"name": "Socket Ring", "load_type": "socket", "load_power_w": 7200, "quantity": 4},
			{"name": "Lighting", "load_type": "lighting", "load_power_w": 1000, "quantity": 2},
			{"name": "Shower", "load_type": "shower", "load_power_w": 9500, "special_location": "bathroom"}
		],
		"special_requirements": ["RCD protection throughout"],
		"installation_constraints": ["Consumer unit in garage"]
	}`)}

	res := newAgent(t, client).Extract(context.Background(), referenceDescription)

	assert.Equal(t, MethodAI, res.Method)
	assertReferenceCircuits(t, res.Circuits)
	assert.Equal(t, "Socket Ring 1", res.Circuits[0].Name)
	assert.Equal(t, "Socket Ring 4", res.Circuits[3].Name)
	assert.Equal(t, []string{"RCD protection throughout"}, res.SpecialRequirements)
	assert.Equal(t, []string{"Consumer unit in garage"}, res.InstallationConstraints)
	assert.Equal(t, 321, res.Tokens)

	assert.Equal(t, ToolName, client.last.ToolChoice)
	require.Len(t, client.last.Tools, 1)
	assert.Contains(t, string(client.last.Tools[0].Parameters), `"ev_charger"`)
}

func TestExtract_FallbackPaths(t *testing.T) {
	tests := []struct {
		name       string
		client     completion.Client
		wantReason string
	}{
		{name: "completion error", client: &fakeCompletion{err: errors.New("503")}, wantReason: "503"},
		{name: "timeout", client: &fakeCompletion{delay: time.Second, resp: toolResponse(`{"circuits":[]}`)}, wantReason: "timed out"},
		{name: "no tool call", client: &fakeCompletion{resp: &completion.Response{Content: "Sure! Here are your circuits"}}, wantReason: completion.ErrNoToolCall.Error()},
		{name: "schema violation", client: &fakeCompletion{resp: toolResponse(`{"circuits":[{"name":"Ring","load_type":"toaster","load_power_w":1}]}`)}, wantReason: "malformed tool call"},
		{name: "quantity above bound", client: &fakeCompletion{resp: toolResponse(`{"circuits":[{"name":"Socket Ring","load_type":"socket","load_power_w":7200,"quantity":1000000000}]}`)}, wantReason: "malformed tool call"},
		{name: "empty circuit list", client: &fakeCompletion{resp: toolResponse(`{"circuits":[]}`)}, wantReason: "no usable circuits"},
		{name: "no client", client: nil, wantReason: "no completion client"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			res := newAgent(t, tt.client).Extract(context.Background(), referenceDescription)

			assert.Equal(t, MethodFallback, res.Method)
			assert.Contains(t, res.FallbackReason, tt.wantReason)
			assertReferenceCircuits(t, res.Circuits)
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		})
	}
}

func TestExtract_EmptyDescription(t *testing.T) {
	client := &fakeCompletion{}
	res := newAgent(t, client).Extract(context.Background(), "   ")
	assert.Equal(t, MethodNone, res.Method)
	assert.Empty(t, res.Circuits)
	assert.Zero(t, client.calls)
}

func TestExtractFallback(t *testing.T) {
	t.Run("reference description", func(t *testing.T) {
		circuits := ExtractFallback(referenceDescription)
		require.Len(t, circuits, 3)
		assert.Equal(t, "Socket Ring", circuits[0].Name)
		assert.Equal(t, 4, circuits[0].Quantity)
		assert.Equal(t, "Lighting Circuit", circuits[1].Name)
		assert.Equal(t, models.LocationBathroom, circuits[2].SpecialLocation)
		for _, c := range circuits {
			assert.Equal(t, models.PhaseSingle, c.Phases)
			require.NotNil(t, c.CableLengthM)
			assert.Positive(t, *c.CableLengthM)
		}
	})

	t.Run("power rated items", func(t *testing.T) {
		circuits := ExtractFallback("New 7.4 kW EV charger and an 11kW cooker")
		require.Len(t, circuits, 2)
		assert.Equal(t, models.LoadEVCharger, circuits[0].LoadType)
		assert.Equal(t, 7400.0, circuits[0].LoadPowerW)
		assert.Equal(t, models.LocationOutdoor, circuits[0].SpecialLocation)
		assert.Equal(t, models.LoadCooker, circuits[1].LoadType)
		assert.Equal(t, 11000.0, circuits[1].LoadPowerW)
	})

	t.Run("number words and outdoor", func(t *testing.T) {
		circuits := ExtractFallback("three smoke alarms, two garden lights")
		require.Len(t, circuits, 2)
		assert.Equal(t, models.LoadSmokeAlarm, circuits[0].LoadType)
		assert.Equal(t, 3, circuits[0].Quantity)
		assert.Equal(t, models.LoadLighting, circuits[1].LoadType)
		assert.Equal(t, models.LocationOutdoor, circuits[1].SpecialLocation)
	})

	t.Run("unrecognised text", func(t *testing.T) {
		assert.Empty(t, ExtractFallback("please make it safe"))
		assert.Empty(t, ExtractFallback(""))
	})

	t.Run("bounded on long input", func(t *testing.T) {
		long := strings.Repeat("2 sockets, ", 2000)
		start := time.Now()
		circuits := ExtractFallback(long)
		assert.Len(t, circuits, 2000)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestExpandQuantities(t *testing.T) {
	length := 12.0
	in := []models.ExtractedCircuit{
		{Name: "Socket Ring", LoadType: models.LoadSocket, LoadPowerW: 7200, Quantity: 3, CableLengthM: &length, SpecialLocation: models.LocationKitchen},
		{Name: "Shower", LoadType: models.LoadShower, LoadPowerW: 9500, Quantity: 1},
		{Name: "Cooker", LoadType: models.LoadCooker, LoadPowerW: 7200},
	}

	out := ExpandQuantities(in)
	require.Len(t, out, 5)
	assert.Equal(t, []string{"Socket Ring 1", "Socket Ring 2", "Socket Ring 3", "Shower", "Cooker"},
		[]string{out[0].Name, out[1].Name, out[2].Name, out[3].Name, out[4].Name})
	for _, c := range out[:3] {
		assert.Equal(t, 7200.0, c.LoadPowerW)
		assert.Equal(t, models.LocationKitchen, c.SpecialLocation)
		assert.Equal(t, 1, c.Quantity)
	}
	assert.Equal(t, 1, out[4].Quantity)

	*out[0].CableLengthM = 99
	assert.Equal(t, 12.0, *out[1].CableLengthM, "expanded circuits do not share cable length")
}

func TestExpandQuantities_CapsQuantity(t *testing.T) {
	out := ExpandQuantities([]models.ExtractedCircuit{{Name: "Lights", LoadType: models.LoadLighting, LoadPowerW: 100, Quantity: 1000000000}})
	require.Len(t, out, models.MaxQuantity)
	assert.Equal(t, fmt.Sprintf("Lights %d", models.MaxQuantity), out[len(out)-1].Name)
}
