package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/mcp-form-filler/internal/config"
	"github.com/a3tai/mcp-form-filler/internal/filler"
	"github.com/a3tai/mcp-form-filler/internal/mcp"
	"github.com/a3tai/mcp-form-filler/internal/pdf/extraction"
	"github.com/a3tai/mcp-form-filler/internal/question"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// newLogger builds the process logger. stdout carries the MCP protocol in stdio mode, so logs always
// go to stderr, and stdio mode stays quiet unless debug is enabled.
func newLogger(cfg *config.Config, stderr io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.IsStdioMode() && !cfg.IsDebug() && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// newService wires the form filling service from the configuration
func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*filler.Service, error) {
	generator, err := question.NewGenerator(ctx, question.LLMConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create question generator: %w", err)
	}

	if err := cfg.EnsureOutputDirectory(); err != nil {
		return nil, err
	}

	return filler.NewService(filler.Config{
		DocumentDir: cfg.DocumentDirectory,
		OutputDir:   cfg.OutputDirectory,
		MaxFileSize: cfg.MaxFileSize,
		SessionTTL:  cfg.SessionTTL,
		MaxSessions: cfg.MaxSessions,
		Workers:     cfg.Workers,
		Author:      cfg.Author,
		OCR: extraction.OCRConfig{
			Tesseract: cfg.OCR.Tesseract,
			Lang:      cfg.OCR.Lang,
		},
	}, filler.WithGenerator(generator), filler.WithLogger(logger))
}

// run serves until ctx is cancelled or the transport fails
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	service, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := service.Close(); err != nil {
			logger.Warn("failed to close form service", "error", err)
		}
	}()
	service.StartJanitor()

	server, err := mcp.NewServer(cfg, service, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	logger.Debug("starting", "config", cfg.String())
	return server.Run(ctx)
}

func main() {
	cfg, err := config.LoadFromFlags()
	if errors.Is(err, config.ErrVersionRequested) {
		printVersion(os.Stdout)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if version != "dev" {
		cfg.Version = version
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MCP Form Filler\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
