// Package cli holds the receptionist commands.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/config"
	"github.com/room4-2/receptionist/profile"
)

// App carries what the commands share. Zero fields are filled from the
// environment when a command runs.
type App struct {
	Version string

	// Profiles overrides the profile directory named by CLIENTS_DIR.
	Profiles      profile.Source
	DefaultTenant string
}

func (a *App) source() profile.Source {
	if a.Profiles != nil {
		return a.Profiles
	}
	return profile.NewFileStore(config.LoadProfileSettings().Dir)
}

func (a *App) defaultTenant() string {
	if a.DefaultTenant != "" {
		return a.DefaultTenant
	}
	return config.LoadProfileSettings().DefaultClientID
}

func (a *App) resolver() *profile.Resolver {
	return profile.NewResolver(a.source(), zap.NewNop())
}

// NewRootCmd creates the top-level "receptionist" command. Run without a
// subcommand it serves calls.
func NewRootCmd(app *App) *cobra.Command {
	serve := newServeCmd(app)

	root := &cobra.Command{
		Use:           "receptionist",
		Short:         "AI phone receptionist for small service businesses",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	root.AddCommand(
		serve,
		newPromptCmd(app),
		newClientsCmd(app),
		newValidateCmd(app),
	)
	return root
}
