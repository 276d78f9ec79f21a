package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sievefin/sift/internal/cli"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-tier processing metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, _ := cmd.Flags().GetDuration("since")

			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			summaries, err := store.SummarizeTiers(ctx, time.Now().Add(-since))
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println(cli.FormatWarning("no metrics recorded yet"))
				return nil
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("Tier activity, last %s", since)))
			fmt.Print(cli.RenderTierSummaries(summaries))
			return nil
		},
	}

	cmd.Flags().Duration("since", 7*24*time.Hour, "reporting window")

	return cmd
}
