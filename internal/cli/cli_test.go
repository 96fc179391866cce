package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/extraction"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/validation"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetIn(strings.NewReader(stdin))
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func TestExtractOffline(t *testing.T) {
	out, err := execute(t, "", "extract", "--offline", "2 lighting circuits and a 9.5kW shower")
	require.NoError(t, err)

	var res extraction.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, extraction.MethodFallback, res.Method)
	assert.NotEmpty(t, res.Circuits)
}

const compliantDesign = `{
  "installation": {"class": "domestic", "earthing": "TN-C-S"},
  "designs": [{
    "name": "Kitchen Lights",
    "load_type": "lighting",
    "load_power_w": 400,
    "cable_length_m": 15,
    "cable_size_mm2": 1.5,
    "cpc_size_mm2": 1.0,
    "cable_type": "6242Y Twin & Earth",
    "protection_device": {"type": "RCBO", "rating_a": 6, "curve": "B", "ka_rating": 6, "rcd_rating_ma": 30},
    "rcd_protected": true,
    "calculations": {"design_current_a": 1.7, "voltage_drop_pct": 1.1},
    "justifications": {"cable": "Reg 525 voltage drop, Reg 433.1.1"}
  }]
}`

func TestValidate(t *testing.T) {
	t.Run("compliant file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "designs.json")
		require.NoError(t, os.WriteFile(path, []byte(compliantDesign), 0o600))

		out, err := execute(t, "", "validate", path)
		require.NoError(t, err)

		var res validation.Result
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.True(t, res.Passed)
		require.Len(t, res.Scores, 1)
	})

	t.Run("non compliant stdin", func(t *testing.T) {
		in := strings.Replace(compliantDesign, `"load_type": "lighting"`, `"load_type": "socket"`, 1)
		in = strings.Replace(in, `"rcd_protected": true`, `"rcd_protected": false`, 1)
		in = strings.Replace(in, `"type": "RCBO", "rating_a": 6, "curve": "B", "ka_rating": 6, "rcd_rating_ma": 30`, `"type": "MCB", "rating_a": 20, "curve": "B", "ka_rating": 6`, 1)

		out, err := execute(t, in, "validate", "-")
		assert.ErrorIs(t, err, ErrNotCompliant)

		var res validation.Result
		require.NoError(t, json.Unmarshal([]byte(out[:strings.LastIndex(out, "}")+1]), &res))
		assert.False(t, res.Passed)
		assert.NotEmpty(t, res.Errors)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "", "validate", filepath.Join(t.TempDir(), "absent.json"))
		assert.ErrorContains(t, err, "failed to read")
	})
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "circuitctl dev (unknown)\n", out)
}
