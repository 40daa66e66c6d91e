package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/cli/config"
	"github.com/secmon-lab/searchlist/pkg/collection"
	httpctrl "github.com/secmon-lab/searchlist/pkg/controller/http"
	"github.com/secmon-lab/searchlist/pkg/repository/jsonapi"
	"github.com/secmon-lab/searchlist/pkg/service/entitycache"
	"github.com/secmon-lab/searchlist/pkg/service/worker"
	"github.com/secmon-lab/searchlist/pkg/usecase"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var exposeStore bool
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var searchCfg config.Search

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("SEARCHLIST_ADDR"),
			Destination: &addr,
		},
		&cli.BoolFlag{
			Name:        "expose-store",
			Usage:       "Serve the entity store as JSON:API under /jsonapi",
			Sources:     cli.EnvVars("SEARCHLIST_EXPOSE_STORE"),
			Destination: &exposeStore,
		},
	}

	// Add shared config flags
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, searchCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			widget, err := appCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to load widget configuration")
			}

			store, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("failed to close repository", "error", err.Error())
				}
			}()

			ucOpts, err := searchCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "invalid search configuration")
			}

			cache := entitycache.New(store)
			registry := collection.NewRegistry(ctx, widget.Collections, cache)
			uc := usecase.New(registry, cache, ucOpts...)

			var refreshWorker *worker.ResultRefreshWorker
			if interval := searchCfg.RefreshInterval(); interval > 0 {
				refreshWorker = worker.NewResultRefreshWorker(uc.Search, interval)
				if err := refreshWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start result refresh worker")
				}
			}

			var httpOpts []httpctrl.Options
			if exposeStore {
				httpOpts = append(httpOpts, httpctrl.WithJSONAPI(jsonapi.NewHandler(store)))
				logger.Info("JSON:API view of the entity store enabled", "path", "/jsonapi")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "addr", addr, "repository", repoCfg, "search", searchCfg)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("Received shutdown signal", "signal", sig)

				if refreshWorker != nil {
					refreshWorker.Stop()
				}
				uc.Search.Cancel()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logger.Info("Server shutdown completed")
				return nil
			}
		},
	}
}
