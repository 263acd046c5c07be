package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only JSON API for the selected host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := e.defaultClient(ctx)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = e.cfg.API.Addr
			}
			e.watchConfig()

			srv := &http.Server{
				Addr:              addr,
				Handler:           api.New(c, e.log.Named("api")).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(ctx, srv, e.log.Logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: api.addr from the config)")
	return cmd
}

// serve runs srv until ctx is done, then shuts it down gracefully
func serve(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	errc := make(chan error, 1)
	go func() {
		log.Info("api listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
