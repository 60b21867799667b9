package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cinefm/backend"
	"cinefm/backend/internal/config"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the file manager server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var o config.Overrides
			if cmd.Flags().Changed("listen") {
				o.Listen = &listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := backend.NewApp(backend.Options{
				ConfigPath:     root.configPath,
				ConfigRequired: cmd.Flags().Changed("config"),
				Debug:          root.debug,
				Overrides:      o,
			})
			defer app.Shutdown()
			if err := app.Startup(ctx); err != nil {
				return err
			}
			return app.Run()
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address, overrides the config file (e.g. :3000)")
	return cmd
}
