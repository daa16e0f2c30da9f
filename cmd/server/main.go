package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RichardoC/studypad/internal/api"
	"github.com/RichardoC/studypad/internal/chat"
	"github.com/RichardoC/studypad/internal/config"
	"github.com/RichardoC/studypad/internal/db"
	"github.com/RichardoC/studypad/internal/documents"
	"github.com/RichardoC/studypad/internal/llm"
	"github.com/RichardoC/studypad/internal/objectstore"
	"github.com/RichardoC/studypad/internal/ocr"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "studypad-server",
		Short:         "Study assistant API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file (default $STUDYPAD_CONFIG)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the web client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	root.AddCommand(serve)
	return root
}

// closers collects cleanup functions run in reverse order.
type closers []func() error

func (c closers) Close() error {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		err = multierr.Append(err, c[i]())
	}
	return err
}

func serve(ctx context.Context, cfg config.Config) (err error) {
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	var cleanup closers
	defer func() {
		err = multierr.Append(err, cleanup.Close())
	}()

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.Database.Path))
		return err
	}
	cleanup = append(cleanup, database.Close)

	backend, err := llm.NewBackend(cfg.LLM.BackendConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize LLM backend: %w", err)
	}
	llmService := llm.New(backend, logger.Named("llm"), cfg.LLM.Timeout.Duration)

	objects, err := newObjectStore(ctx, cfg.Storage, logger, &cleanup)
	if err != nil {
		return err
	}
	extractor, err := newExtractor(ctx, cfg, &cleanup)
	if err != nil {
		return err
	}

	docs := documents.New(database, objects, extractor, documents.Config{
		URLTTL:     cfg.Storage.URLTTL.Duration,
		OCRTimeout: cfg.OCR.Timeout.Duration,
	}, logger.Named("documents"))
	chatService := chat.New(database, llmService, logger.Named("chat"))
	handler := api.NewHandler(database, chatService, llmService, docs, logger, cfg.Server.MaxUploadBytes)

	mux := http.NewServeMux()
	handler.Register(mux)
	if cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	}
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger, cleanup *closers) (objectstore.Store, error) {
	if cfg.Backend != "gcs" {
		logger.Warn("using in-memory object store; uploads are lost on restart")
		return objectstore.NewMemoryStore(cfg.Bucket), nil
	}
	store, err := objectstore.NewGCSStore(ctx, cfg.Bucket, logger.Named("gcs"), objectstore.ClientOptions(cfg.Credentials)...)
	if err != nil {
		return nil, err
	}
	*cleanup = append(*cleanup, store.Close)
	return store, nil
}

func newExtractor(ctx context.Context, cfg config.Config, cleanup *closers) (ocr.Extractor, error) {
	switch cfg.OCR.Backend {
	case "vision":
		e, err := ocr.NewCloudVisionExtractor(ctx, objectstore.ClientOptions(cfg.Storage.Credentials)...)
		if err != nil {
			return nil, err
		}
		*cleanup = append(*cleanup, e.Close)
		return e, nil
	case "llm":
		model := cfg.OCR.Model
		if model == "" {
			model = cfg.LLM.Model
		}
		opts := []openai.Option{openai.WithToken(cfg.LLM.Token), openai.WithModel(model)}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OCR model: %w", err)
		}
		return ocr.NewVisionLLMExtractor(m, 0), nil
	default:
		return nil, nil
	}
}
