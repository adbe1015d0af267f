package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Divas-Gupta30/ragflow/internal/ingestion"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			a := &app{cfg: cfg, log: log}
			defer a.close()
			if err := openStores(cmd.Context(), a, false); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var workflowID, path, model string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a local file or folder into a workflow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, log, opts.memory)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.store.GetWorkflow(ctx, workflowID); err != nil {
				return err
			}
			files, err := ingestion.LoadLocalFiles(path)
			if err != nil {
				return fmt.Errorf("load files: %w", err)
			}
			if model == "" {
				model = cfg.Models.DefaultEmbedding
			}

			var added, failed int
			for _, f := range files {
				abs, err := filepath.Abs(f)
				if err != nil {
					return err
				}
				doc := &storage.Document{WorkflowID: workflowID, FileName: filepath.Base(f), FileURL: abs}
				if err := a.store.CreateDocument(ctx, doc); err != nil {
					return err
				}
				res, err := a.ingester.Ingest(ctx, doc.ID, workflowID, model)
				if err != nil {
					log.Warn("skip file", "file", f, "error", err)
					failed++
					continue
				}
				added += res.ChunksAdded
				log.Info("indexed", "file", f, "chunks", res.ChunksAdded)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files (%d failed), %d new chunks.\n", len(files)-failed, failed, added)
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow", "", "workflow id")
	cmd.Flags().StringVar(&path, "path", "./data", "file or folder to index")
	cmd.Flags().StringVar(&model, "embedding-model", "", "embedding model (default from config)")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var workflowID, query string
	var web bool
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a workflow a question in a new chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, log, opts.memory)
			if err != nil {
				return err
			}
			defer a.close()

			sess, msg, err := a.chat.StartConversation(ctx, workflowID, query, web)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\nAnswer: %s\n", sess.ID, *msg.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow", "", "workflow id")
	cmd.Flags().StringVarP(&query, "query", "q", "", "question text")
	cmd.Flags().BoolVar(&web, "web", false, "augment the answer with web search")
	_ = cmd.MarkFlagRequired("workflow")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
