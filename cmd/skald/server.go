package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/halverson/skald/internal/api"
	"github.com/halverson/skald/internal/config"
	"github.com/halverson/skald/internal/genai"
	"github.com/halverson/skald/internal/ingest"
	"github.com/halverson/skald/internal/memory"
	"github.com/halverson/skald/internal/pipeline"
	"github.com/halverson/skald/internal/retrieval"
	"github.com/halverson/skald/internal/retry"
	"github.com/halverson/skald/internal/storage"
	"github.com/halverson/skald/internal/vector"
	"github.com/halverson/skald/internal/weather"
)

func serveCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "ingest documents dropped into the watch directory")
	return cmd
}

func runServe(ctx context.Context, watch bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	deps, err := wire(cfg)
	if err != nil {
		return err
	}
	defer deps.store.Close()

	removePid, err := writePidFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer removePid()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: deps.server.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if watch {
		watcher, err := ingest.NewWatcher(deps.ingestor, cfg.WatchDir)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := watcher.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve document search and memory tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			deps, err := wire(cfg)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			mcpServer := api.NewMCPServer(
				deps.retriever, deps.memory, deps.store,
				float32(cfg.Retrieval.DistanceThreshold))
			return mcpServer.ServeStdio(version)
		},
	}
}

// deps holds the wired component graph shared by serve and mcp.
type deps struct {
	store     *storage.Store
	ingestor  *ingest.Ingestor
	retriever *retrieval.Retriever
	memory    *memory.Store
	server    *api.Server
}

func wire(cfg config.Config) (*deps, error) {
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	gemini := genai.NewClientWithBaseURL(
		cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Model, cfg.Gemini.EmbedModel)

	vectors := vector.NewSQLiteStore(store.DB())
	embedder := retrieval.NewEmbedder(gemini)
	retriever := retrieval.NewRetriever(embedder, vectors, cfg.Retrieval.TopK)
	ingestor := ingest.NewIngestor(store, embedder, vectors, cfg.Ingest.ChunkSize, cfg.Ingest.Overlap)
	memoryStore := memory.NewStore(cfg.DataDir, store)
	weatherClient := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.Timeout)
	distiller := memory.NewDistiller(gemini)

	turn := pipeline.NewTurn(
		weatherClient, retriever, store, gemini, memoryStore, distiller,
		float32(cfg.Retrieval.DistanceThreshold),
		retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     retry.Linear(cfg.Retry.BackoffBase),
		})

	server := api.NewServer(ingestor, store, turn, memoryStore, cfg.DataDir, cfg.CORSOrigin)

	return &deps{
		store:     store,
		ingestor:  ingestor,
		retriever: retriever,
		memory:    memoryStore,
		server:    server,
	}, nil
}
