package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskgraph/internal/app"
)

func serveCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the task graph current until interrupted",
		Long: `Recompute on the scheduler tick and whenever a birthline or deadline passes,
and follow changes to the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, o.config, app.WithLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(ctx)
		},
	}
}
