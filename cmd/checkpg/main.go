// Command checkpg runs the compliance checking server: the check workers and
// the REST API in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/youssefsiam38/checkpg"
	"github.com/youssefsiam38/checkpg/api"
	"github.com/youssefsiam38/checkpg/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "checkpg",
	Short: "Policy compliance checking for engagement letters",
	Long: `checkpg analyzes engagement letters against policy documents using a
token-limited model. Documents are chunked to fit the model's context window,
every chunk pair is analyzed, and violations are collected into a report
served through signed URLs.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the check workers and REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ValidateForServe(); err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("database_url is required (or set DATABASE_URL)")
		}

		ctx := cmd.Context()
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer pool.Close()

		if err := storage.Migrate(ctx, pool); err != nil {
			return err
		}
		fmt.Println("schema is up to date")
		return nil
	},
}

func serve(ctx context.Context, cfg *Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer pool.Close()

	client, err := checkpg.New(pool, &checkpg.ClientConfig{
		APIKey:              cfg.AnthropicAPIKey,
		Model:               cfg.Model,
		SigningKey:          []byte(cfg.SigningKey),
		DocumentBaseURL:     cfg.DocumentBaseURL,
		MaxConcurrentChecks: cfg.MaxConcurrentChecks,
		RetryCount:          cfg.RetryCount,
		RetryDelay:          cfg.RetryDelay(),
		OverlapFraction:     cfg.OverlapFraction,
		SignedURLTTL:        cfg.SignedURLTTL(),
		Logger:              logger,
	})
	if err != nil {
		return err
	}

	if err := client.Start(ctx); err != nil {
		return err
	}

	apiCfg := &api.Config{Logger: logger}
	if cfg.MaxUploadMegabytes > 0 {
		apiCfg.MaxUploadBytes = cfg.MaxUploadMegabytes << 20
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(client, apiCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Error("client shutdown failed", "error", err)
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
