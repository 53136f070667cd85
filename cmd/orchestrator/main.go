package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kmahoney/transit-orchestrator/internal/api"
	"github.com/kmahoney/transit-orchestrator/internal/approval"
	"github.com/kmahoney/transit-orchestrator/internal/config"
	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/interpreter"
	"github.com/kmahoney/transit-orchestrator/internal/network/awsnet"
	"github.com/kmahoney/transit-orchestrator/internal/notify"
	"github.com/kmahoney/transit-orchestrator/internal/storage"
	storesql "github.com/kmahoney/transit-orchestrator/internal/storage/sql"
	"github.com/kmahoney/transit-orchestrator/internal/workflow"
)

func main() {
	root := &cobra.Command{
		Use:           "orchestrator",
		Short:         "Transit hub attachment orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), reconcileCmd(), purgeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// setupStore loads configuration and opens the request store. The caller
// owns closing the store.
func setupStore() (*config.Config, storage.Storage, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Logger{}, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, zerolog.Logger{}, fmt.Errorf("invalid configuration: %w", err)
	}
	log := newLogger(cfg.Server.LogLevel)

	if cfg.Database.Driver == "sqlite3" {
		if err := os.MkdirAll("data", 0755); err != nil {
			return nil, nil, log, fmt.Errorf("creating data directory: %w", err)
		}
	}
	store, err := storesql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, log, fmt.Errorf("initializing storage: %w", err)
	}
	return cfg, store, log, nil
}

// setup additionally assembles the workflow engine on top of the store.
func setup(ctx context.Context) (*config.Config, storage.Storage, *workflow.Engine, zerolog.Logger, error) {
	cfg, store, log, err := setupStore()
	if err != nil {
		return nil, nil, nil, log, err
	}

	dialer, err := awsnet.NewDialer(ctx, cfg.Hub)
	if err != nil {
		store.Close()
		return nil, nil, nil, log, err
	}

	engine := workflow.New(
		dialer,
		store,
		notify.NewTagNotifier(cfg.Tags.StatusPrefix, log),
		approval.New(cfg.Tags.ApprovalKey, log),
		interpreter.New(cfg.Tags, log),
		cfg,
		log,
	)
	return cfg, store, engine, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server accepting events and operator decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, engine, log, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			server := &http.Server{
				Addr:         cfg.Server.Addr(),
				Handler:      api.NewRouter(store, engine, cfg.Server.APIKey, log),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 5 * time.Minute, // executions poll the hub
				IdleTimeout:  120 * time.Second,
			}

			log.Info().Str("addr", cfg.Server.Addr()).Msg("starting transit orchestrator")
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server failed")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
}

func reconcileCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single tag-change event through the workflow",
		Long:  "Reads a tag-change event as JSON from --file or stdin and runs one reconciliation execution.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, engine, _, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			in := io.Reader(os.Stdin)
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var ev domain.TagChangeEvent
			if err := json.NewDecoder(in).Decode(&ev); err != nil {
				return fmt.Errorf("decoding event: %w", err)
			}

			c, err := engine.HandleTagChange(cmd.Context(), ev)
			if c != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.Encode(c)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the event JSON (defaults to stdin)")
	return cmd
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete request versions past their retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, log, err := setupStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PurgeExpired(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			log.Info().Int("purged", n).Msg("expired request versions deleted")
			return nil
		},
	}
}
