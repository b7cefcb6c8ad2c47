package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/happyhackingspace/formflat/internal/server"
)

func (c *CLI) newServeCommand() *cobra.Command {
	var addr, staticDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the token, form list and download endpoints over HTTP",
		Example: `  formflat serve
  formflat serve --addr 127.0.0.1:8080 --static ./static`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			if staticDir == "" {
				staticDir = c.cfg.Server.StaticDir
			}
			f, err := c.cfg.Format()
			if err != nil {
				return err
			}
			if !c.verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			s := server.New(server.Config{
				Client:        c.client(),
				Options:       c.cfg.Options(),
				DefaultFormat: f,
				StaticDir:     staticDir,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().StringVar(&staticDir, "static", "", "Static files directory (default: server.static_dir)")
	return cmd
}
