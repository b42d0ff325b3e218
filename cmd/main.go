package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/TomerMadmon/md5-cracker/internal/app"
	"github.com/TomerMadmon/md5-cracker/internal/config"
	"github.com/TomerMadmon/md5-cracker/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "md5load",
	Short: "Load precomputed md5-to-phone partitions into the lookup store",
	Long:  `A concurrent, resumable bulk loader for precomputed md5(phone) partition files with support for checkpointing, retry, and monitoring.`,
	RunE:  runLoad,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")

	// Input flags
	rootCmd.Flags().String("source", "file", "Record source (file/s3)")
	rootCmd.Flags().String("input-dir", "./precomp_data", "Partition directory for the file source")
	rootCmd.Flags().String("s3-endpoint", "", "S3 endpoint")
	rootCmd.Flags().String("s3-access-key", "", "S3 access key")
	rootCmd.Flags().String("s3-secret-key", "", "S3 secret key")
	rootCmd.Flags().Bool("s3-secure", false, "Use HTTPS for S3")
	rootCmd.Flags().String("s3-bucket", "", "S3 bucket name")
	rootCmd.Flags().String("s3-prefix", "", "S3 object prefix filter")

	// Store flags
	rootCmd.Flags().String("backend", "sqlite", "Store backend (postgres/sqlite)")
	rootCmd.Flags().String("dsn", "", "Postgres connection string")
	rootCmd.Flags().String("db-path", "./md5_phone_map.db", "SQLite database file")

	// Pipeline flags
	rootCmd.Flags().Int("concurrency", 4, "Number of concurrent workers")
	rootCmd.Flags().Int("batch-size", 10000, "Rows staged per batch")
	rootCmd.Flags().Int("retries", 3, "Maximum attempts per task")
	rootCmd.Flags().Int("retry-backoff-ms", 100, "Initial retry backoff in milliseconds")
	rootCmd.Flags().String("checkpoint", "./checkpoint.json", "Checkpoint file")
	rootCmd.Flags().Int("flush-every", 5, "Checkpoint flush interval in task completions")
	rootCmd.Flags().Bool("reset-state", false, "Discard the checkpoint and reconsider every partition")
	rootCmd.Flags().Bool("clear-store", false, "Empty the store before loading (implies --reset-state)")
	rootCmd.Flags().Bool("dry-run", false, "List residual partitions without loading")
	rootCmd.Flags().Bool("show-progress", true, "Show progress display (auto-disabled for dry-run)")
	rootCmd.Flags().String("metrics-addr", "", "Prometheus metrics listen address (disabled if empty)")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
}

func runLoad(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	// Create application
	importer, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create importer: %w", err)
	}

	// Run the load
	err = importer.Run(ctx)

	// Close importer resources after the load completes or is cancelled
	if closeErr := importer.Close(); closeErr != nil {
		log.Error("Error closing importer", zap.Error(closeErr))
	}

	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
