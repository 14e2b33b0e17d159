package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sibyl-ai/sibyl/pkg/arbiter"
	"github.com/sibyl-ai/sibyl/pkg/config"
	"github.com/sibyl-ai/sibyl/pkg/generate"
	"github.com/sibyl-ai/sibyl/pkg/preset"
	"github.com/sibyl-ai/sibyl/pkg/ratelimit"
	"github.com/sibyl-ai/sibyl/pkg/server"
	"github.com/sibyl-ai/sibyl/pkg/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the saying service",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is fine; the config file expands whatever
			// the environment provides.
			_ = godotenv.Load()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
				logrus.SetLevel(lvl)
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sibyl.yaml", "path to config file")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	catalog, err := preset.LoadCatalog(cfg.Presets.FilePath)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}

	st := store.Open(cfg.Storage)
	defer st.Close()
	logrus.WithField("backend", st.Kind()).Info("saying store ready")

	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window())
	selector := preset.NewSelector(catalog, nil)
	gen := generate.NewClient(cfg.OpenRouter)

	a := arbiter.New(limiter, selector, catalog, st, gen, nil)
	srv := server.New(cfg.Server.Addr(), a, catalog)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
