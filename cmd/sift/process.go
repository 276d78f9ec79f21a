package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/sievefin/sift/internal/cli"
	"github.com/sievefin/sift/internal/model"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <messages.json>",
		Short: "Process a batch of banking notifications",
		Long: `Read a JSON array of messages and run each through the extraction
pipeline. Results, review items, and metrics are persisted; a summary
prints when the batch completes.`,
		Args: cobra.ExactArgs(1),
		RunE: runProcess,
	}

	cmd.Flags().Int("workers", 0, "concurrent workers (default from config)")

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read messages file: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("failed to parse messages file: %w", err)
	}
	if len(messages) == 0 {
		fmt.Println(cli.FormatWarning("no messages to process"))
		return nil
	}

	ctx := cmd.Context()
	pipeline, cleanup, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	bar := progressbar.NewOptions(len(messages),
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	stats, err := pipeline.ProcessBatch(ctx, messages, func() {
		_ = bar.Add(1)
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(cli.FormatTitle("Batch complete"))
	fmt.Print(cli.RenderBatchStats(stats))
	return nil
}
