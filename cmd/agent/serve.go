package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Divas-Gupta30/ragflow/internal/api"
	"github.com/Divas-Gupta30/ragflow/internal/workflow"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := buildApp(ctx, cfg, log, opts.memory)
			if err != nil {
				return err
			}
			defer a.close()

			dispatcher, err := workflow.NewDispatcher(cfg.Execution.PoolSize, a.machine, log.With("component", "dispatcher"))
			if err != nil {
				return err
			}
			defer dispatcher.Close()

			go a.updateMetrics(ctx)

			router := api.NewRouter(api.Deps{
				Store:       a.store,
				Vectors:     a.vectors,
				Namespace:   cfg.Vector.Namespace,
				Chat:        a.chat,
				Executions:  dispatcher,
				Models:      api.Models{LLM: cfg.Models.LLM, Embedding: cfg.Models.Embedding},
				UploadDir:   cfg.Ingestion.UploadDir,
				CORSOrigins: cfg.Server.CORSOrigins,
				APIPrefix:   cfg.Server.APIPrefix,
				Health:      a.health,
				Log:         log.With("component", "api"),
			})
			server := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("server starting", "addr", cfg.Server.Addr, "prefix", cfg.Server.APIPrefix)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			// Wait for interrupt signal
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			select {
			case <-c:
			case err := <-errCh:
				return err
			}

			log.Info("shutting down gracefully")
			cancel()
			shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer stop()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("server forced to shutdown", "error", err)
				return err
			}
			log.Info("server exited")
			return nil
		},
	}
}
