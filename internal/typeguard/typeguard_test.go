package typeguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
)

func TestFloat(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   float64
		wantOK bool
	}{
		{name: "float64", input: 2.5, want: 2.5, wantOK: true},
		{name: "int", input: 32, want: 32, wantOK: true},
		{name: "string with unit", input: "2.5mm²", want: 2.5, wantOK: true},
		{name: "kw string", input: "9.5 kW", want: 9.5, wantOK: true},
		{name: "nil", input: nil, wantOK: false},
		{name: "word", input: "large", wantOK: false},
		{name: "bool", input: true, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Float(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestString(t *testing.T) {
	s, ok := String("  ring  ")
	assert.True(t, ok)
	assert.Equal(t, "ring", s)

	_, ok = String("   ")
	assert.False(t, ok)

	assert.Equal(t, "def", StringDefault(42, "def"))
}

func TestBool(t *testing.T) {
	assert.True(t, BoolDefault("yes", false))
	assert.False(t, BoolDefault("no", true))
	assert.True(t, BoolDefault(nil, true))
}

func TestCircuitFromMap(t *testing.T) {
	t.Run("full payload", func(t *testing.T) {
		c, err := CircuitFromMap(map[string]any{
			"name":             "Kitchen Sockets",
			"load_type":        "socket",
			"load_power_w":     7200.0,
			"quantity":         2.0,
			"cable_length_m":   18.0,
			"phases":           "single",
			"special_location": "kitchen",
		})
		require.NoError(t, err)
		assert.Equal(t, models.LoadSocket, c.LoadType)
		assert.Equal(t, 2, c.Quantity)
		require.NotNil(t, c.CableLengthM)
		assert.Equal(t, 18.0, *c.CableLengthM)
		assert.Equal(t, models.LocationKitchen, c.SpecialLocation)
	})

	t.Run("missing optional fields get defaults", func(t *testing.T) {
		c, err := CircuitFromMap(map[string]any{"name": "Shower", "loadType": "Electric Shower"})
		require.NoError(t, err)
		assert.Equal(t, models.LoadShower, c.LoadType)
		assert.Equal(t, 9500.0, c.LoadPowerW)
		assert.Equal(t, 1, c.Quantity)
		assert.Equal(t, models.PhaseSingle, c.Phases)
		assert.Nil(t, c.CableLengthM)
	})

	t.Run("missing name rejected", func(t *testing.T) {
		_, err := CircuitFromMap(map[string]any{"load_type": "socket"})
		assert.Error(t, err)
	})

	t.Run("missing load type rejected", func(t *testing.T) {
		_, err := CircuitFromMap(map[string]any{"name": "Mystery"})
		assert.Error(t, err)
	})
}

func TestDesignFromMap(t *testing.T) {
	d := DesignFromMap(map[string]any{
		"name":           "Ring 1",
		"load_type":      "socket",
		"cable_size_mm2": "2.5",
		"topology":       "Ring",
		"protection_device": map[string]any{
			"type":      "rcbo",
			"rating_a":  32.0,
			"ka_rating": 6.0,
		},
		"calculations": map[string]any{
			"design_current_a": 31.3,
			"zs":               0.8,
		},
		"justifications": map[string]any{
			"cable": "Reg 433.1.204 ring final",
		},
	})

	assert.Equal(t, 2.5, d.CableSizeMM2)
	assert.Equal(t, "ring", d.Topology)
	require.NotNil(t, d.Protection)
	assert.Equal(t, "RCBO", d.Protection.Type)
	assert.True(t, d.RCDProtected, "an RCBO implies RCD protection")
	require.NotNil(t, d.Calculations)
	assert.Equal(t, 31.3, d.Calculations.DesignCurrentA)
	assert.Contains(t, d.Justifications.Text(), "433.1.204")
}

func TestDesignsFromPayload(t *testing.T) {
	designs, err := DesignsFromPayload(map[string]any{
		"circuits": []any{map[string]any{"name": "A"}, "garbage", map[string]any{"name": "C"}},
	})
	require.NoError(t, err)
	require.Len(t, designs, 3)
	assert.Equal(t, "A", designs[0].Name)
	assert.Equal(t, "", designs[1].Name)
	assert.Equal(t, "C", designs[2].Name)

	_, err = DesignsFromPayload(map[string]any{"text": "sorry"})
	assert.Error(t, err)
}

func TestFillDefaults(t *testing.T) {
	input := models.ExtractedCircuit{Name: "Cooker", LoadType: models.LoadCooker, LoadPowerW: 8000}

	t.Run("complete design untouched", func(t *testing.T) {
		d := models.CircuitDesign{
			Name:         "Cooker",
			LoadType:     models.LoadCooker,
			CableSizeMM2: 6,
			CPCSizeMM2:   2.5,
			Protection:   &models.ProtectionDevice{Type: "MCB", RatingA: 32},
			Calculations: &models.Calculations{DesignCurrentA: 34.8},
		}
		out := FillDefaults(3, d, input)
		assert.False(t, out.Incomplete)
		assert.Empty(t, out.DefaultedFields)
		assert.Equal(t, 3, out.Index)
		assert.Equal(t, 8000.0, out.LoadPowerW)
	})

	t.Run("missing fields are filled and flagged", func(t *testing.T) {
		out := FillDefaults(0, models.CircuitDesign{}, input)
		assert.True(t, out.Incomplete)
		assert.Equal(t, "Cooker", out.Name)
		assert.Equal(t, 6.0, out.CableSizeMM2)
		require.NotNil(t, out.Protection)
		assert.Equal(t, 32.0, out.Protection.RatingA)
		assert.Contains(t, out.Notes, "missing calculations")
		assert.Contains(t, out.Notes, "missing protection device")
		assert.Equal(t, []string{models.FieldCableSize, models.FieldCPCSize, models.FieldProtection, models.FieldCalculations}, out.DefaultedFields)
	})

	t.Run("returned rcd flag is kept when protection is defaulted", func(t *testing.T) {
		d := models.CircuitDesign{
			Name:         "Workshop Sockets",
			LoadType:     models.LoadSocket,
			RCDProtected: false,
			Calculations: &models.Calculations{DesignCurrentA: 31.3},
		}
		out := FillDefaults(0, d, models.ExtractedCircuit{Name: "Workshop Sockets", LoadType: models.LoadSocket, LoadPowerW: 7200})
		assert.False(t, out.RCDProtected)
		assert.True(t, out.Defaulted(models.FieldProtection))
		assert.True(t, out.Defaulted(models.FieldCableSize))
		assert.False(t, out.Defaulted(models.FieldCalculations))
	})
}

func TestDefaultDesign(t *testing.T) {
	d := DefaultDesign(1, models.ExtractedCircuit{Name: "EV", LoadType: models.LoadEVCharger}, "timeout")
	assert.True(t, d.Incomplete)
	assert.True(t, d.RCDProtected)
	assert.Equal(t, "SWA armoured", d.CableType)
	assert.Equal(t, 7400.0, d.LoadPowerW)
	assert.Contains(t, d.Notes[0], "timeout")
	assert.True(t, d.Defaulted(models.FieldCableSize))
	assert.True(t, d.Defaulted(models.FieldProtection))
}

func TestSchemaValidator(t *testing.T) {
	v, err := NewSchemaValidator([]byte(`{
		"type": "object",
		"required": ["circuits"],
		"properties": {
			"circuits": {"type": "array", "items": {"type": "object", "required": ["name"]}}
		}
	}`))
	require.NoError(t, err)

	out, err := v.Decode([]byte(`{"circuits":[{"name":"Ring"}]}`))
	require.NoError(t, err)
	assert.Len(t, out["circuits"], 1)

	_, err = v.Decode([]byte(`{"circuits":[{"label":"Ring"}]}`))
	assert.Error(t, err)

	_, err = v.Decode([]byte(`{"nothing": true}`))
	assert.Error(t, err)
}
