package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/wsn-simulator/internal/api"
	"github.com/signalsfoundry/wsn-simulator/internal/config"
	"github.com/signalsfoundry/wsn-simulator/internal/logging"
	"github.com/signalsfoundry/wsn-simulator/internal/observability"
	"github.com/signalsfoundry/wsn-simulator/internal/rpc"
	"github.com/signalsfoundry/wsn-simulator/model"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation behind HTTP status and gRPC health endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Logging)

			httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
			if err != nil {
				return fmt.Errorf("listen http %s: %w", cfg.Server.HTTPAddr, err)
			}
			grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				httpLis.Close()
				return fmt.Errorf("listen grpc %s: %w", cfg.Server.GRPCAddr, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withTracing(ctx, cfg, log, func() error {
				return serve(ctx, cfg, log, httpLis, grpcLis)
			})
		},
	}
	return cmd
}

// serve runs the simulation while exposing its status. The servers stay up
// after the simulation finishes until ctx is cancelled.
func serve(ctx context.Context, cfg config.File, log logging.Logger, httpLis, grpcLis net.Listener) error {
	s, err := newSession(ctx, cfg, log)
	if err != nil {
		httpLis.Close()
		grpcLis.Close()
		return err
	}

	var (
		metrics   http.Handler
		collector *observability.NetworkCollector
	)
	if s.recorder != nil {
		metrics = s.recorder.Handler()
		collector = s.recorder.Network
	}

	hs := rpc.NewHealth()
	s.observers = append(s.observers, func(_ model.RoundStats, exhausted bool) {
		hs.SetExhausted(exhausted)
	})
	grpcSrv := rpc.NewServer(s.log, s.runID, collector, hs)
	httpSrv := &http.Server{
		Handler:           api.NewRouter(s.telemetry, metrics, s.log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 2)
	go func() {
		s.log.Info(ctx, "serving gRPC health", logging.String("addr", grpcLis.Addr().String()))
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		s.log.Info(ctx, "serving HTTP status", logging.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
	}()

	simDone := make(chan error, 1)
	go func() {
		simDone <- s.simulate(ctx)
	}()

	var result error
	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			waiting = false
		case err := <-serveErr:
			result = err
			waiting = false
		case err := <-simDone:
			simDone = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error(ctx, "simulation stopped", logging.Err(err))
				result = err
				waiting = false
			}
		}
	}

	s.log.Info(context.Background(), "shutting down servers")
	hs.Shutdown()
	grpcSrv.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn(shutdownCtx, "http shutdown", logging.Err(err))
	}
	if simDone != nil {
		if err := <-simDone; err != nil && !errors.Is(err, context.Canceled) && result == nil {
			result = err
		}
	}
	return result
}
