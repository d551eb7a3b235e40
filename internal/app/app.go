package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	server "github.com/yungbote/scriptrunner-backend/internal/http"
	"github.com/yungbote/scriptrunner-backend/internal/observability"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *server.Server

	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	shutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		Enabled:     cfg.Otel.Enabled,
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Otel.Endpoint,
		Headers:     cfg.Otel.Headers,
		Insecure:    cfg.Otel.Insecure,
		SampleRatio: cfg.Otel.SampleRatio,
	})

	clients, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	reposet := wireRepos(clients.DB.DB(), log)
	serviceset := wireServices(log, cfg, clients, reposet)
	handlerset := wireHandlers(log, serviceset)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Server:       wireServer(log, cfg, handlerset),
		otelShutdown: shutdown,
	}, nil
}

// Run serves HTTP and runs the sweeper until ctx is done or either fails.
// Running batches are cancelled and drained before Run returns.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		return a.Server.Run(gctx, a.Cfg.HTTPAddr)
	})
	if sw := a.Services.Sweeper; sw != nil {
		if err := sw.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			sw.Stop()
			return nil
		})
	}

	err := g.Wait()
	a.Log.Info("Shutting down, waiting for running batches")
	a.Services.Batches.Shutdown()
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	a.Clients.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
