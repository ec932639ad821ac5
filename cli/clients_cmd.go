package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/room4-2/receptionist/profile"
)

func newClientsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List tenant profiles and check that each one resolves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := app.resolver()
			ids, err := resolver.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No client profiles found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TENANT\tBUSINESS\tSTATUS")
			invalid := 0
			for _, id := range ids {
				cfg, err := resolver.Resolve(id)
				if err != nil {
					invalid++
					fmt.Fprintf(tw, "%s\t-\t✗ %v\n", id, err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t✓ ok\n", id, cfg.Business.Name)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d profiles are invalid", invalid, len(ids))
			}
			return nil
		},
	}
}

func newValidateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <tenant>",
		Short: "Check one tenant profile and list what it is missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := app.resolver().Resolve(args[0])

			var invalid *profile.ValidationError
			switch {
			case err == nil:
				fmt.Fprintf(out, "✓ %s (%s) is valid\n", cfg.ID, cfg.Business.Name)
				return nil
			case errors.As(err, &invalid):
				fmt.Fprintf(out, "✗ %s is invalid\n", args[0])
				for _, field := range invalid.Missing {
					fmt.Fprintf(out, "  missing: %s\n", field)
				}
				for _, problem := range invalid.Problems {
					fmt.Fprintf(out, "  problem: %s\n", problem)
				}
			}
			return err
		},
	}
}
