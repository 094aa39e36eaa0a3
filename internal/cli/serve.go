package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/mandelbrot/internal/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve renders over HTTP",
		Long: `Start an HTTP server that renders images on demand:

  GET /render?width=800&height=600&threads=8&format=png
  GET /healthz

Encoded images are cached with the backend from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr = stringSetting(cmd, "addr", addr, c.Config.Server.Addr)
			return c.runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr string) error {
	runner, err := c.newRunner(ctx, true)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer runner.Close()

	printKeyValue("Address", addr)
	printKeyValue("Cache", c.Config.Cache.Backend)

	srv := server.New(runner, loggerFromContext(ctx))
	return srv.ListenAndServe(ctx, addr)
}
