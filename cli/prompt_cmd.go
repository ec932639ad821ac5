package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/room4-2/receptionist/prompt"
)

func newPromptCmd(app *App) *cobra.Command {
	var mode string
	var callback bool
	var at string

	cmd := &cobra.Command{
		Use:   "prompt [tenant]",
		Short: "Print the system prompt and greeting a caller would get",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant := app.defaultTenant()
			if len(args) == 1 {
				tenant = args[0]
			}

			cfg, err := app.resolver().Resolve(tenant)
			if err != nil {
				return err
			}

			var opts []prompt.Option
			if at != "" {
				now, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				opts = append(opts, prompt.WithClock(func() time.Time { return now }))
			}

			cc := prompt.CallContext{CalendarMode: mode}
			if callback {
				cc.CallType = prompt.CallCallback
			}
			bundle := prompt.NewEngine(opts...).Generate(cfg, cc)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "=== SYSTEM PROMPT (%s) ===\n%s\n\n", cfg.ID, bundle.SystemPrompt)
			fmt.Fprintf(out, "=== GREETING ===\n%s\n\n", bundle.Greeting)
			status := "CLOSED"
			if bundle.IsOpen {
				status = "OPEN"
			}
			fmt.Fprintf(out, "STATUS: %s\n", status)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Calendar mode override: google, jobber or lead_capture")
	cmd.Flags().BoolVar(&callback, "callback", false, "Render for a return call")
	cmd.Flags().StringVar(&at, "at", "", "Render as of this RFC3339 time instead of now")

	return cmd
}
