package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sievefin/sift/internal/cli"
	"github.com/sievefin/sift/internal/model"
)

func institutionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "institutions",
		Short: "Manage the known-institution registry",
	}

	cmd.AddCommand(institutionsListCmd())
	cmd.AddCommand(institutionsAddCmd())

	return cmd
}

func institutionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered institutions",
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

			institutions, err := store.ListInstitutions(ctx)
			if err != nil {
				return err
			}
			if len(institutions) == 0 {
				fmt.Println(cli.FormatWarning("no institutions registered"))
				return nil
			}

			fmt.Println(cli.FormatTitle("Institutions"))
			for _, inst := range institutions {
				state := cli.SuccessStyle.Render("active")
				if !inst.IsActive {
					state = cli.SubtleStyle.Render("inactive")
				}
				fmt.Printf("%-6d %-24s %-4s %s\n", inst.ID, inst.Name, inst.Country, state)
				if len(inst.Senders) > 0 {
					fmt.Printf("       senders: %s\n", strings.Join(inst.Senders, ", "))
				}
				if len(inst.Domains) > 0 {
					fmt.Printf("       domains: %s\n", strings.Join(inst.Domains, ", "))
				}
			}
			return nil
		},
	}
}

func institutionsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register or update an institution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			country, _ := cmd.Flags().GetString("country")
			senders, _ := cmd.Flags().GetStringSlice("sender")
			domains, _ := cmd.Flags().GetStringSlice("domain")
			signatures, _ := cmd.Flags().GetStringSlice("signature")

			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			inst := &model.Institution{
				Name:       args[0],
				Country:    strings.ToUpper(country),
				Senders:    senders,
				Domains:    domains,
				Signatures: signatures,
				IsActive:   true,
			}
			if err := store.SaveInstitution(ctx, inst); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("institution %q saved", inst.Name)))
			return nil
		},
	}

	cmd.Flags().String("country", "", "ISO country code")
	cmd.Flags().StringSlice("sender", nil, "known sender address (repeatable)")
	cmd.Flags().StringSlice("domain", nil, "known sending domain (repeatable)")
	cmd.Flags().StringSlice("signature", nil, "fixed content phrase (repeatable)")

	return cmd
}
