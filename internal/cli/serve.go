package cli

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"FeedRelay/internal/httpapi"
)

// NewServeCommand creates the long-running serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run all jobs on their intervals and expose the ops API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if addr == "" {
				addr = a.Config().Server.Addr
			}

			sched := a.Scheduler()
			if err := sched.Start(ctx); err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			server := httpapi.NewServer(a, a.Gatherer(), a.Logger().With("component", "httpapi"))
			serveErr := server.Run(ctx, addr)

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return errors.Join(serveErr, sched.Stop(stopCtx))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address for the ops API (defaults to server.addr)")
	return cmd
}
