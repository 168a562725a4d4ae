// Command scout runs the agentic research and enrichment engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scout/internal/agent"
	"scout/internal/config"
	"scout/internal/entity"
	"scout/internal/facts"
	"scout/internal/llm"
	"scout/internal/logging"
	"scout/internal/memory"
	"scout/internal/search"
	"scout/internal/server"
	"scout/internal/store"
	"scout/internal/tools"
)

func main() {
	root := &cobra.Command{
		Use:           "scout",
		Short:         "Agentic research and enrichment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "scout:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			log := logging.Init(cfg.Debug)
			defer logging.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(ctx, db); err != nil {
				return err
			}

			backend, err := search.NewBackend(cfg.Search)
			if err != nil {
				return err
			}
			log.Info("search backend selected", zap.String("provider", backend.Name()))

			resolver := entity.NewResolver(db)
			factStore := facts.NewStore(db, resolver)

			svc := agent.Services{
				Resolver: resolver,
				Facts:    factStore,
				History:  memory.NewHistory(cfg.Research.MemoryWindow),
				LongTerm: memory.NewLongTerm(db),
				Registry: tools.DefaultRegistry(),
				Backend:  backend,
				Fetcher:  search.NewFetcher(cfg.Search.FetchTimeout, 8),
				Reasoner: llm.NewOpenAIClient(llm.Config{
					APIKey:  cfg.LLM.APIKey,
					BaseURL: cfg.LLM.BaseURL,
					Model:   cfg.LLM.Model,
					Timeout: cfg.LLM.Timeout,
				}),
				Aux: llm.NewOpenAIClient(llm.Config{
					APIKey:  cfg.LLM.APIKey,
					BaseURL: cfg.LLM.BaseURL,
					Model:   cfg.LLM.InferenceModel,
					Timeout: cfg.LLM.AuxTimeout,
				}),
				Config: cfg,
				Now:    time.Now,
			}

			engine := agent.NewEngine(svc)
			return server.New(engine, factStore).ListenAndServe(ctx, cfg.Addr)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logging.Init(cfg.Debug)
			defer logging.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			return store.Migrate(ctx, db)
		},
	}
}
