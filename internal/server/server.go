package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/idot-digital/events-api/internal/config"
	"github.com/idot-digital/events-api/internal/handlers"
	"github.com/idot-digital/events-api/internal/middleware"
	"github.com/idot-digital/events-api/internal/store"
)

// Server runs the REST and gRPC front ends over one event store
type Server struct {
	cfg    *config.Config
	store  store.EventStore
	logger *slog.Logger
	http   *http.Server
	grpc   *grpc.Server
}

func New(cfg *config.Config, s store.EventStore, logger *slog.Logger) *Server {
	srv := &Server{
		cfg:    cfg,
		store:  s,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", srv.healthz)
	handlers.NewHTTPHandlers(s, logger).Mount(mux, cfg.APIPrefix)

	srv.http = &http.Server{
		Handler:           middleware.Logging(logger)(middleware.Timeout(cfg.RequestTimeout)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv.grpc = grpc.NewServer(grpc.UnaryInterceptor(middleware.UnaryInterceptor(logger)))
	handlers.RegisterEventStoreServer(srv.grpc, handlers.NewGRPCHandlers(s, logger))

	return srv
}

// Handler returns the REST handler including middleware
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run listens on the configured ports and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.RESTPort))
	if err != nil {
		return fmt.Errorf("listen for REST: %w", err)
	}
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.GRPCPort))
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listen for gRPC: %w", err)
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve serves on the given listeners. When ctx is done, or either server
// fails, both are shut down gracefully within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("REST server listening", "address", httpLis.Addr().String())
		if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve REST: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.logger.Info("gRPC server listening", "address", grpcLis.Addr().String())
		if err := s.grpc.Serve(grpcLis); err != nil {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down servers")
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

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
		return fmt.Errorf("shutdown REST: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if p, ok := s.store.(store.Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			middleware.Logger(r.Context(), s.logger).Warn("Store ping failed", "error", err)
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
