package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sievefin/sift/internal/cli"
	"github.com/sievefin/sift/internal/model"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the human-review queue",
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewShowCmd())
	cmd.AddCommand(reviewApproveCmd())
	cmd.AddCommand(reviewRejectCmd())
	cmd.AddCommand(reviewCorrectCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending review items, most urgent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			items, err := store.ListPendingReviews(ctx, limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println(cli.FormatSuccess("review queue is empty"))
				return nil
			}

			fmt.Println(cli.FormatTitle("Pending reviews"))
			fmt.Print(cli.RenderReviewItems(items))
			return nil
		},
	}
	cmd.Flags().Int("limit", 50, "maximum items to list")
	return cmd
}

func reviewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <result-id>",
		Short: "Show a result awaiting review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			result, err := store.GetResultByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Print(cli.RenderBox("Extraction result", cli.RenderResult(result)))
			fmt.Println()
			return nil
		},
	}
}

func reviewApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <item-id>",
		Short: "Approve a review item as extracted",
		Args:  cobra.ExactArgs(1),
		RunE:  resolveReview(model.ReviewApproved),
	}
}

func reviewRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <item-id>",
		Short: "Reject a review item as wrong or not a transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  resolveReview(model.ReviewRejected),
	}
}

func resolveReview(status model.ReviewStatus) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid review item id %q", args[0])
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.ResolveReview(cmd.Context(), id, status); err != nil {
			return err
		}

		fmt.Println(cli.FormatSuccess(fmt.Sprintf("review item %d %s", id, status)))
		return nil
	}
}

func reviewCorrectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct <result-id> <field> <value>",
		Short: "Correct one field of a result",
		Long: `Correct a single extracted field. The original result is kept and
superseded by a corrected copy; the correction feeds template learning.
Correctable fields: amount, currency, date, merchant, reference, location.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")

			ctx := cmd.Context()
			pipeline, cleanup, err := buildPipeline(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			corrected, err := pipeline.SubmitCorrection(ctx, user, args[0], args[1], args[2])
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess("correction applied"))
			fmt.Print(cli.RenderResult(corrected))
			return nil
		},
	}
	cmd.Flags().String("user", "local", "user submitting the correction")
	return cmd
}
