// Package api hosts the pnlboard listeners: the HTTP API and a gRPC health
// endpoint whose status follows source readiness.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pnlboard/internal/config"
	"pnlboard/internal/feed"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "pnlboard.Profit"

const healthInterval = time.Second

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	cfg      config.Server
	refresh  time.Duration
	datasets *feed.Datasets
	log      *slog.Logger

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

// NewServer creates a Server serving handler over HTTP. Sources in datasets
// are reloaded every refresh interval while the server runs.
func NewServer(cfg config.Server, handler http.Handler, datasets *feed.Datasets, refresh time.Duration, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		refresh:  refresh,
		datasets: datasets,
		log:      log,
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.UpdateHealth()
	return s
}

// UpdateHealth publishes SERVING once every source has loaded, NOT_SERVING
// before that.
func (s *Server) UpdateHealth() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.datasets.Ready() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// ListenAndServe opens the configured listeners and serves until ctx is
// cancelled. A zero gRPC port disables the gRPC listener.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	var grpcLn net.Listener
	if s.cfg.GRPCPort > 0 {
		if grpcLn, err = net.Listen("tcp", s.cfg.GRPCAddr()); err != nil {
			httpLn.Close()
			return fmt.Errorf("listening on %s: %w", s.cfg.GRPCAddr(), err)
		}
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve runs the HTTP server on httpLn, the gRPC server on grpcLn (if not
// nil), the periodic source refresh, and the health updater. It returns
// after a graceful shutdown once ctx is done.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcLn != nil {
		g.Go(func() error {
			s.log.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return s.datasets.Refresh(ctx, s.refresh)
	})

	g.Go(func() error {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		last := s.UpdateHealth()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if status := s.UpdateHealth(); status != last {
					s.log.Info("health status changed", "from", last.String(), "to", status.String())
					last = status
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	err := s.http.Shutdown(ctx)
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
