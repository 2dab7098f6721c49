package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elektro-code/CatanTournamentBot/internal/api"
	"github.com/elektro-code/CatanTournamentBot/internal/browser"
	"github.com/elektro-code/CatanTournamentBot/internal/config"
	"github.com/elektro-code/CatanTournamentBot/internal/notify"
	"github.com/elektro-code/CatanTournamentBot/internal/registry"
	"github.com/elektro-code/CatanTournamentBot/internal/rewrite"
	"github.com/elektro-code/CatanTournamentBot/internal/store"
	"github.com/elektro-code/CatanTournamentBot/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the watcher server",
	Long: `Starts the HTTP command surface and the completion sweeper. Watches
started through the API run until their game ends, times out, or the
server shuts down.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	rewriter, err := buildRewriter(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink notify.Sink
	if cfg.Notify.WebhookURL != "" {
		sink = notify.NewWebhook(cfg.Notify.WebhookURL, nil, logger)
	} else {
		logger.Warn("no webhook configured, results will only be logged")
		sink = notify.NewLogSink(logger)
	}

	var archive registry.Archive
	if cfg.History.DatabasePath != "" {
		hist, err := store.Open(cfg.History.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer hist.Close()
		archive = hist
	}

	reg := registry.New(registry.Options{
		Watcher: watch.NewWatcher(cfg.Watch, logger),
		NewRuntime: func(ctx context.Context) (browser.Runtime, error) {
			return browser.NewChrome(ctx, cfg.Browser, rewriter, logger)
		},
		Sink:          sink,
		Archive:       archive,
		Capacity:      cfg.History.MaxRecords(),
		SweepInterval: cfg.Watch.SweepInterval(),
		Logger:        logger,
	})

	handler := api.NewHandler(reg, cfg.Notify.DefaultChannel, logger)
	srv := &http.Server{
		Addr:         cfg.API.ListenAddr(),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reg.Run(gctx)
	})

	if cfg.Rewrite.PatchFile != "" {
		g.Go(func() error {
			return rewrite.WatchPatchFile(gctx, cfg.Rewrite.PatchFile, rewriter, logger)
		})
	}

	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
