package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Travis-L-R/meshinfo/internal/config"
	"github.com/Travis-L-R/meshinfo/internal/service"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "meshinfo",
		Short: "meshinfo — mesh network telemetry ingestion and site generator",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the ingestion-and-projection pipeline",
		RunE:  runStart,
	}

	startCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default: configs/config.yaml)")
	rootCmd.AddCommand(startCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load config; a missing subscription topic fails here, before any
	// component starts.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	// Set up logger
	logger, err := buildLogger(cfg.Paths.Data)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer logger.Sync()

	ctrl := service.NewController(cfg, logger)
	return ctrl.Run(context.Background())
}

// buildLogger tees the production logger with a file sink that keeps
// only error-severity entries, at <data>/error.log.
func buildLogger(dataDir string) (*zap.Logger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	errFile, err := os.OpenFile(filepath.Join(dataDir, "error.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.InfoLevel),
		zapcore.NewCore(encoder, zapcore.Lock(errFile), zapcore.ErrorLevel),
	)
	return zap.New(core), nil
}
