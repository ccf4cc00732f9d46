package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/xxxbrian/surge-ruleset/internal/logging"
	"github.com/xxxbrian/surge-ruleset/internal/server"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Aggregate periodically and serve the artifacts over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				a.cfg.Serve.Addr = addr
			}
			if cmd.Flags().Changed("refresh") {
				a.cfg.Serve.Refresh = refresh
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on (overrides serve.addr)")
	cmd.Flags().DurationVar(&refresh, "refresh", 30*time.Minute, "Interval between aggregation runs, 0 runs once (overrides serve.refresh)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	logger := logging.GetLogger("server")
	srv := server.NewServer(a.cfg.Output.Dir, a.recorder, logger)

	refresh := func() error {
		report, err := a.run(ctx)
		if report != nil {
			srv.SetReport(report)
		}
		return err
	}
	// A discovery failure on the first run is fatal; later ones keep the
	// previous artifacts online.
	if err := refresh(); err != nil {
		return err
	}

	if a.cfg.Serve.Refresh > 0 {
		go func() {
			ticker := time.NewTicker(a.cfg.Serve.Refresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := refresh(); err != nil {
						logger.Error().Err(err).Msg("Refresh failed")
					}
				}
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              a.cfg.Serve.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", a.cfg.Serve.Addr).Dur("refresh", a.cfg.Serve.Refresh).Msg("Starting artifact server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
