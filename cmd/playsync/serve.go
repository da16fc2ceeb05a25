package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/playsync/internal/core/observability/log"
	"github.com/zeusync/playsync/internal/core/remote"
	"github.com/zeusync/playsync/internal/injector"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var listen, quicAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a remote replica that follows a master",
		Long: `Run a slave replica. The master connects over WebSocket on the listen
address (path /replica) or over QUIC, sends a snapshot and then streams
operation batches. /status reports the replica sequence and fingerprint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Slave.Listen = listen
			}
			if quicAddr != "" {
				cfg.Slave.QUIC = quicAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			slave, cleanup, err := injector.InitializeSlave(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return serve(cmd.Context(), slave, cfg.Slave.Listen, cfg.Slave.QUIC)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP and WebSocket listen address")
	cmd.Flags().StringVar(&quicAddr, "quic", "", "QUIC listen address, disabled when empty")
	return cmd
}

func serve(parent context.Context, slave *injector.Slave, listen, quicAddr string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	logger := slave.Logger.With(log.String("component", "serve"))

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopCh)
	go func() {
		select {
		case sig := <-stopCh:
			logger.Info("shutting down", log.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := &http.Server{
		Addr:              listen,
		Handler:           remote.NewSlaveRouter(slave.Mirror, slave.Logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", log.String("addr", listen), log.String("path", remote.ReplicaPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	if quicAddr != "" {
		ln, err := remote.ListenQUIC(quicAddr, slave.Logger)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		logger.Info("listening", log.String("addr", ln.Addr().String()), log.String("transport", "quic"))
		g.Go(func() error {
			defer ln.Close()
			return ln.Serve(ctx, slave.Mirror)
		})
	}

	return g.Wait()
}
