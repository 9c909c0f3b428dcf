// Rememberd is a memory daemon exposing hybrid retrieval with a
// behavior-feedback loop over the Model Context Protocol.
//
// It stores conversation turns and memory items, answers queries by fusing
// semantic, lexical, and recency signals, and scores each response from how
// the user behaves afterwards.
//
// Usage:
//
//	# Start the daemon on stdio with the default config
//	rememberd serve
//
//	# Point it at a different config file
//	rememberd serve --config ~/.config/rememberd/config.yaml
//
//	# Finalize overdue pending feedback and exit
//	rememberd sweep
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rememberd/internal/config"
	"github.com/fyrsmithlabs/rememberd/internal/embeddings"
	"github.com/fyrsmithlabs/rememberd/internal/engine"
	"github.com/fyrsmithlabs/rememberd/internal/feedback"
	"github.com/fyrsmithlabs/rememberd/internal/logging"
	"github.com/fyrsmithlabs/rememberd/internal/mcp"
	"github.com/fyrsmithlabs/rememberd/internal/memory"
	"github.com/fyrsmithlabs/rememberd/internal/storage"
	"github.com/fyrsmithlabs/rememberd/internal/synthesis"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rememberd",
	Short: "Memory daemon with hybrid retrieval and behavior feedback",
	Long: `rememberd stores memories and conversation turns, answers queries by
combining semantic, lexical, and recency signals, and learns response
quality from follow-up behavior.`,
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the daemon and serve the remember, remember_feedback,
memory_write, and conversation_get tools over the MCP stdio transport.

Logs go to stderr; stdout carries the protocol.`,
	RunE: runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Finalize overdue pending feedback and exit",
	Long: `Scan for pending feedback records whose abandonment window has
elapsed and finalize them. Useful from cron when the daemon is not running
continuously.`,
	RunE: runSweep,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/rememberd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	eng, logger, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "rememberd",
		Version: version,
		Logger:  logger,
	}, eng)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	eng, logger, cleanup, err := buildEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	swept, err := eng.Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	logger.Info("sweep finished", zap.Int("finalized", swept))
	fmt.Printf("Finalized %d abandoned feedback record(s).\n", swept)
	return nil
}

// buildEngine loads config and wires every component. The returned cleanup
// closes them in reverse order.
func buildEngine() (*engine.Engine, *zap.Logger, func(), error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building logger: %w", err)
	}

	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path}, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	embedder, err := embeddings.NewOpenAIProvider(embeddings.OpenAIConfig{
		APIKey:    cfg.Embeddings.APIKey.Value(),
		BaseURL:   cfg.Embeddings.BaseURL,
		Model:     cfg.Embeddings.Model,
		Dimension: cfg.Embeddings.Dimension,
	}, logger)
	if err != nil {
		store.Close()
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	vector, err := memory.NewVectorIndex(memory.VectorConfig{
		Path:       cfg.Vector.Path,
		Collection: cfg.Vector.Collection,
		Dimension:  embedder.Dimension(),
		Compress:   cfg.Vector.Compress,
	}, logger)
	if err != nil {
		embedder.Close()
		store.Close()
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("opening vector index: %w", err)
	}

	synth, err := synthesis.NewOpenAIProvider(synthesis.OpenAIConfig{
		APIKey:      cfg.Synthesis.APIKey.Value(),
		BaseURL:     cfg.Synthesis.BaseURL,
		ModelFast:   cfg.Synthesis.ModelFast,
		ModelDeep:   cfg.Synthesis.ModelDeep,
		Temperature: cfg.Synthesis.Temperature,
		MaxTokens:   cfg.Synthesis.MaxTokens,
	}, logger)
	if err != nil {
		vector.Close()
		embedder.Close()
		store.Close()
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("creating synthesis provider: %w", err)
	}

	tracker := feedback.NewTracker(store, cfg.Feedback.ToFeedbackConfig(), logger)
	textIndex := memory.NewTextIndex(logger)

	eng, err := engine.New(engine.Config{
		TopK:     cfg.Retrieval.TopK,
		Weights:  cfg.Retrieval.Weights,
		DecayTau: cfg.Retrieval.DecayTau.Duration(),
	}, vector, textIndex, store, store, tracker, embedder, synth, logger)
	if err != nil {
		vector.Close()
		embedder.Close()
		store.Close()
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("creating engine: %w", err)
	}

	cleanup := func() {
		vector.Close()
		embedder.Close()
		store.Close()
		logger.Sync()
	}
	return eng, logger, cleanup, nil
}
