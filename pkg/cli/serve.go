package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/secmon-lab/agentrun/pkg/adapter/notify"
	"github.com/secmon-lab/agentrun/pkg/cli/config"
	server "github.com/secmon-lab/agentrun/pkg/controller/http"
	websocket_controller "github.com/secmon-lab/agentrun/pkg/controller/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/usecase"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func cmdServe() *cli.Command {
	var (
		serverCfg  config.Server
		sentryCfg  config.Sentry
		storageCfg config.Storage
		catalogCfg config.Catalog
		agentCfg   config.Agent
	)

	flags := joinFlags(
		serverCfg.Flags(),
		sentryCfg.Flags(),
		storageCfg.Flags(),
		catalogCfg.Flags(),
		agentCfg.Flags(),
	)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the agent server",
		Flags:   flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logging.Default().Info("starting server",
				"server", serverCfg,
				"sentry", sentryCfg,
				"storage", &storageCfg,
				"catalog", catalogCfg,
				"agent", agentCfg,
			)

			flush, err := sentryCfg.Configure()
			if err != nil {
				return err
			}
			defer flush()

			storageClient, err := storageCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer storageClient.Close(context.Background())

			catalog, err := catalogCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer safe.Close(ctx, catalog)

			notifier := notify.New()
			defer safe.Close(ctx, notifier)

			agent, err := agentCfg.Configure(storageClient)
			if err != nil {
				return err
			}

			uc := usecase.New(interfaces.NewClients(
				interfaces.WithStorageClient(storageClient),
				interfaces.WithCatalogStorage(catalog),
				interfaces.WithNotifier(notifier),
				interfaces.WithAgent(agent),
			), usecase.WithThrottle(catalogCfg.Throttle()))

			wsHub := websocket_controller.NewHub(ctx, uc)
			go wsHub.Run()

			wsHandler := websocket_controller.NewHandler(uc, wsHub,
				websocket_controller.WithCheckOrigin(server.CheckOrigin(serverCfg.AllowedOrigins())))

			serverOptions := []server.Options{
				server.WithWebSocketHandler(wsHandler),
				server.WithAllowedOrigins(serverCfg.AllowedOrigins()),
			}

			staticDir, err := serverCfg.StaticDir()
			if err != nil {
				return err
			}
			if staticDir != "" {
				serverOptions = append(serverOptions, server.WithStaticFS(os.DirFS(staticDir)))
			}

			httpServer := &http.Server{
				Addr:              serverCfg.Addr(),
				Handler:           server.New(uc, serverOptions...),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext: func(l net.Listener) context.Context {
					return ctx
				},
			}

			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			eg, egCtx := errgroup.WithContext(sigCtx)
			eg.Go(func() error {
				logging.From(ctx).Info("listening", "addr", httpServer.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				<-egCtx.Done()
				logging.From(ctx).Info("shutting down server")

				if err := wsHub.Close(); err != nil {
					logging.From(ctx).Error("failed to close WebSocket hub", "error", err)
				}

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return err
				}
				return uc.Close(shutdownCtx)
			})

			return eg.Wait()
		},
	}
}
