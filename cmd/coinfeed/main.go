package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"coinfeed/internal/application/service"
	"coinfeed/internal/application/usecase/monitor"
	"coinfeed/internal/infrastructure/config"
	"coinfeed/internal/infrastructure/logger"
	"coinfeed/internal/infrastructure/svc"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "coinfeed",
		Short:         "Live Upbit price board",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.toml", "path to config.toml")
	root.AddCommand(runCmd(), catalogCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("coinfeed exited")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	logger.Setup("info")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	logger.Setup(cfg.Log.Level)
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Stream prices and render the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sc, err := svc.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer sc.Close()

			log.Info().
				Str("config", configPath).
				Str("quote", cfg.Feed.Quote).
				Int("max_retries", cfg.Feed.MaxRetries).
				Int("batch_limit", cfg.Feed.BatchLimit).
				Msg("coinfeed started")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return monitor.NewService(sc.BuildMonitorServiceDeps()).Run(gctx)
			})
			if srv := sc.MetricsServer(); srv != nil {
				g.Go(func() error { return srv.Start(gctx) })
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func catalogCmd() *cobra.Command {
	var quote string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the joined instrument and price listing once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sc, err := svc.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer sc.Close()

			records, err := sc.Catalog().LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if quote == "" {
				quote = sc.Catalog().Quote()
			}
			records = service.FilterByQuote(records, quote)

			st := monitor.NewState()
			st.Seed(records)
			fmt.Fprintln(cmd.OutOrStdout(), monitor.NewFormatter(cfg.App.Color).RenderBoard(st.Rows()))
			log.Info().Int("records", len(records)).Str("quote", quote).Msg("catalog printed")
			return nil
		},
	}
	cmd.Flags().StringVar(&quote, "quote", "", "quote currency filter (default: feed.quote)")
	return cmd
}
