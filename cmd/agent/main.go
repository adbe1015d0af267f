package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Divas-Gupta30/ragflow/internal/config"
	"github.com/Divas-Gupta30/ragflow/internal/logging"
)

type rootOptions struct {
	configPath string
	memory     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "agent",
		Short:         "Document workflows with retrieval-augmented chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file (default ./config.yaml if present)")
	cmd.PersistentFlags().BoolVar(&opts.memory, "memory", false, "keep all data in memory instead of Postgres")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newIngestCmd(opts),
		newAskCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
