package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/validation"
)

// ErrNotCompliant is returned when a validated design has critical findings
var ErrNotCompliant = errors.New("design is not compliant")

// designFile is the validate input: designs plus the installation they belong to
type designFile struct {
	Installation models.Installation    `json:"installation"`
	Designs      []models.CircuitDesign `json:"designs"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Validate circuit designs from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	cmd.Flags().Float64("industrial-min-ka", validation.DefaultOptions().IndustrialMinKA, "Minimum breaking capacity for industrial installations")

	RootCmd.AddCommand(cmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	in, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	var file designFile
	if err := json.Unmarshal(in, &file); err != nil {
		return fmt.Errorf("failed to parse designs: %w", err)
	}
	if file.Installation.Class == "" {
		file.Installation.Class = models.InstallationDomestic
	}
	for i := range file.Designs {
		file.Designs[i].Index = i
	}

	opts := validation.DefaultOptions()
	opts.IndustrialMinKA, _ = cmd.Flags().GetFloat64("industrial-min-ka")

	res := validation.New(opts).Validate(file.Designs, file.Installation)
	if err := printJSON(cmd, res); err != nil {
		return err
	}
	if !res.Passed {
		return ErrNotCompliant
	}
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return b, nil
}
