// Command atmos-server runs a station continuously and serves its metrics
// and the inspection gRPC API until interrupted.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/atmos-simulator/internal/app"
	"github.com/signalsfoundry/atmos-simulator/internal/config"
	"github.com/signalsfoundry/atmos-simulator/internal/inspect"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atmos-server",
		Short: "Serve a running atmospherics station over gRPC.",
		Long: `atmos-server loads --scenario, steps it on the configured clock and serves
the inspection API on --inspect_addr and Prometheus metrics on
--metrics_addr. Edits to the atmos.* keys of --config apply from the next
step without a restart.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(cmd.Flags())
			if err != nil {
				return err
			}
			if err := config.ReadFile(v); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg.Log.Output = cmd.ErrOrStderr()

			srv, err := start(cmd.Context(), cfg, v, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			return srv.serve(cmd.Context())
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

type server struct {
	app *app.App

	grpc       *grpc.Server
	grpcLis    net.Listener
	metrics    *http.Server
	metricsLis net.Listener
}

// start builds the app and binds both listeners. An empty address leaves
// that listener off.
func start(ctx context.Context, cfg config.Config, v *viper.Viper, reg prometheus.Registerer) (*server, error) {
	a, err := app.New(ctx, cfg, reg)
	if err != nil {
		return nil, err
	}
	s := &server{app: a}

	if cfg.MetricsAddr != "" {
		if s.metricsLis, err = net.Listen("tcp", cfg.MetricsAddr); err != nil {
			a.Close(ctx)
			return nil, err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Collector.Handler())
		s.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}
	if cfg.InspectAddr != "" {
		if s.grpcLis, err = net.Listen("tcp", cfg.InspectAddr); err != nil {
			s.closeListeners()
			a.Close(ctx)
			return nil, err
		}
		s.grpc = inspect.NewGRPCServer(inspect.NewServer(a.Station, cfg.Dt, a.Log), a.Log, a.Collector)
	}
	if v != nil {
		a.WatchSettings(v)
	}
	return s, nil
}

func (s *server) closeListeners() {
	for _, l := range []net.Listener{s.grpcLis, s.metricsLis} {
		if l != nil {
			_ = l.Close()
		}
	}
}

// serve runs the simulation and both listeners until ctx is cancelled. The
// listeners stay up after a bounded run finishes so the final state can be
// inspected.
func (s *server) serve(ctx context.Context) error {
	log := s.app.Log
	if s.metrics != nil {
		log.Info(ctx, "serving Prometheus metrics", logging.String("addr", s.metricsLis.Addr().String()))
		go func() {
			if err := s.metrics.Serve(s.metricsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn(context.Background(), "metrics server exited", logging.Err(err))
			}
		}()
	}
	if s.grpc != nil {
		log.Info(ctx, "serving inspection gRPC", logging.String("addr", s.grpcLis.Addr().String()))
		go func() {
			if err := s.grpc.Serve(s.grpcLis); err != nil {
				log.Error(context.Background(), "gRPC server exited", logging.Err(err))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.app.Run(ctx)
	}()

	<-ctx.Done()
	<-done
	log.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.grpc != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			s.grpc.Stop()
		}
	}
	var err error
	if s.metrics != nil {
		err = s.metrics.Shutdown(shutdownCtx)
	}
	s.app.Close(shutdownCtx)
	return err
}
