package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/completion"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/extraction"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/logging"
)

func init() {
	cmd := &cobra.Command{
		Use:   "extract [description]",
		Short: "Extract circuits from a free-text description",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExtract,
	}
	cmd.Flags().Bool("offline", false, "Use the pattern fallback only, without calling the completion service")

	RootCmd.AddCommand(cmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")
	offline, _ := cmd.Flags().GetBool("offline")

	if offline {
		circuits := extraction.ExpandQuantities(extraction.ExtractFallback(description))
		return printJSON(cmd, extraction.Result{Circuits: circuits, Method: extraction.MethodFallback})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Level, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	agent, err := extraction.NewAgent(completion.NewHTTPClient(cfg.Completion, logger), cfg.Completion.ExtractionModel, cfg.Batch.ExtractionTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to create extraction agent: %w", err)
	}
	return printJSON(cmd, agent.Extract(cmd.Context(), description))
}
