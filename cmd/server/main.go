package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/idot-digital/events-api/internal/config"
	"github.com/idot-digital/events-api/internal/server"
	"github.com/idot-digital/events-api/internal/store"
)

var (
	restPort int
	grpcPort int
	driver   string
)

var rootCmd = &cobra.Command{
	Use:           "events-api",
	Short:         "REST and gRPC API for event records and their reactions",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST and gRPC servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		log.Info("Event store ready", "driver", cfg.Driver)

		return server.New(cfg, store.WithMetrics(s), log).Run(ctx)
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the database tables and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		if cfg.Driver == "memory" {
			return fmt.Errorf("driver %q has no schema", cfg.Driver)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		_, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		log.Info("Schema is up to date", "driver", cfg.Driver)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd, schemaCmd} {
		c.Flags().StringVar(&driver, "driver", "", "store driver: memory, mysql, pgx or sqlite3 (default from STORE_DRIVER)")
	}
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().IntVar(&restPort, "rest-port", 8080, "The REST server port")
		c.Flags().IntVar(&grpcPort, "grpc-port", 50051, "The gRPC server port")
	}
	rootCmd.AddCommand(serveCmd, schemaCmd)
}

// setup loads the configuration, applies flags and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	if cmd.Flags().Changed("driver") {
		cfg.Driver = driver
	}
	if cmd.Flags().Changed("rest-port") {
		cfg.RESTPort = restPort
	}
	if cmd.Flags().Changed("grpc-port") {
		cfg.GRPCPort = grpcPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return cfg, log, nil
}

// openStore connects the configured backend and makes sure its tables exist.
func openStore(ctx context.Context, cfg *config.Config) (store.EventStore, func() error, error) {
	if cfg.Driver == "memory" {
		return store.NewMemory(), func() error { return nil }, nil
	}

	s, err := store.Open(ctx, cfg.Driver, cfg.GetDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, s.Close, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
