package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/bookshelf/internal/api"
	"github.com/dgallion1/bookshelf/internal/config"
	"github.com/dgallion1/bookshelf/internal/cover"
	"github.com/dgallion1/bookshelf/internal/notes"
	"github.com/dgallion1/bookshelf/internal/parser"
	"github.com/dgallion1/bookshelf/internal/pipeline"
	"github.com/dgallion1/bookshelf/internal/searchindex"
	"github.com/dgallion1/bookshelf/internal/searchtext"
	"github.com/dgallion1/bookshelf/internal/store"
	"github.com/dgallion1/bookshelf/internal/toc"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and ingestion workers",
	Long: `Start the bookshelf HTTP server.

Uploads are processed by a pool of background workers. The server stops
accepting jobs and drains in-flight requests on SIGINT or SIGTERM.

Examples:
  bookshelf serve
  bookshelf serve --port 3000
  bookshelf serve --config /etc/bookshelf.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(os.Stdout)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if servePort != "" {
			cfg.Port = servePort
		}
		if err := cfg.Validate(); err != nil {
			log.Error("invalid configuration", "error", err)
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		db, err := store.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		// Initialize clients.
		extractor := &toc.Extractor{Outline: parser.OutlineReader{}, Log: log}
		if cfg.TOCServiceURL != "" {
			ml := toc.NewMLClient(cfg.TOCServiceURL, cfg.TOCServiceTimeout, cfg.TOCServiceRetries)
			defer ml.Close()
			extractor.ML = ml
		}

		condenser := searchtext.New()
		worker := &pipeline.Worker{
			Store:     db,
			TOC:       extractor,
			Condenser: condenser,
			Parse:     parser.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext},
			Log:       log,
		}

		var engine api.SearchEngine
		if cfg.SearchURL != "" {
			idx := searchindex.NewClient(cfg.SearchURL, cfg.SearchAPIKey, cfg.SearchIndex)
			defer idx.Close()
			if err := idx.Health(ctx); err != nil {
				log.Warn("search engine unreachable, local search only until it recovers", "url", cfg.SearchURL, "error", err)
			}
			worker.Indexer = idx
			engine = idx
		}

		if cfg.CoverLookup {
			covers := cover.NewClient(cfg.CoverLookupURL)
			defer covers.Close()
			worker.Covers = covers
		}

		gen, err := notes.NewGenerator(notes.ProviderConfig{
			Provider:        cfg.LLMProvider,
			AnthropicAPIKey: cfg.AnthropicAPIKey,
			AnthropicModel:  cfg.AnthropicModel,
			OpenAIAPIKey:    cfg.OpenAIAPIKey,
			OpenAIModel:     cfg.OpenAIModel,
		})
		if err != nil {
			return err
		}
		var noteSvc *notes.Service
		if gen != nil {
			noteSvc = notes.NewService(gen, log)
		}

		// Initialize pipeline.
		orch := pipeline.NewOrchestrator(cfg, worker, log)
		orch.Start(ctx)

		// Initialize HTTP server.
		srv := api.NewServer(api.Options{
			Store:        db,
			Orchestrator: orch,
			Search:       engine,
			Notes:        noteSvc,
			Condenser:    condenser,
			Log:          log,
			Config:       cfg,
		})

		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      srv,
			ReadTimeout:  5 * time.Minute,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}

		// Graceful shutdown.
		errCh := make(chan error, 1)
		go func() {
			log.Info("starting bookshelf", "port", cfg.Port, "library_dir", cfg.LibraryDir, "notes", noteSvc.Enabled(), "search", engine != nil)
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("server error", "error", err)
				orch.Stop()
				return err
			}
		case <-ctx.Done():
		}

		log.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		orch.Stop()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (overrides config)")
}
