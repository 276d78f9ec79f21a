package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sievefin/sift/internal/cli"
	"github.com/sievefin/sift/internal/model"
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage extraction templates",
	}

	cmd.AddCommand(templatesListCmd())
	cmd.AddCommand(templatesApproveCmd())
	cmd.AddCommand(templatesDeactivateCmd())
	cmd.AddCommand(templatesSeedCmd())

	return cmd
}

func templatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			templates, err := store.ListTemplates(ctx)
			if err != nil {
				fmt.Println(cli.FormatWarning("no templates yet"))
				return nil
			}

			fmt.Println(cli.FormatTitle("Templates"))
			fmt.Print(cli.RenderTemplates(templates))
			return nil
		},
	}
}

func templatesApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Mark a template human-reviewed and security-validated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[0])
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.PromoteTemplate(ctx, id, true); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("template %d approved", id)))
			return nil
		},
	}
}

func templatesSeedCmd() *cobra.Command {
	var approve bool

	cmd := &cobra.Command{
		Use:   "seed <templates.json>",
		Short: "Load manually authored templates from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			var seeds []struct {
				Institution string                     `json:"institution"`
				Family      string                     `json:"family"`
				Confidence  float64                    `json:"confidence"`
				Rules       map[string]model.FieldRule `json:"rules"`
			}
			if err := json.Unmarshal(data, &seeds); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			for _, seed := range seeds {
				tmpl := &model.Template{
					Institution:     seed.Institution,
					Family:          model.Family(seed.Family),
					Rules:           seed.Rules,
					Confidence:      seed.Confidence,
					AcceptThreshold: seed.Confidence,
					Provenance:      model.ProvenanceManual,
					IsActive:        true,
				}
				if err := store.SaveTemplate(ctx, tmpl); err != nil {
					return fmt.Errorf("failed to seed template for %s/%s: %w",
						seed.Institution, seed.Family, err)
				}
				if approve {
					if err := store.PromoteTemplate(ctx, tmpl.ID, true); err != nil {
						return err
					}
				}
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("seeded template %d (%s/%s v%d)",
					tmpl.ID, tmpl.Institution, tmpl.Family, tmpl.Version)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "mark seeded templates human-reviewed and security-validated")
	return cmd
}

func templatesDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Retire a template without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[0])
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.DeactivateTemplate(ctx, id); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("template %d deactivated", id)))
			return nil
		},
	}
}
