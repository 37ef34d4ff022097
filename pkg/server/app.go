package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"VolDesk/internal/domain/repository"
	"VolDesk/internal/failover"
	"VolDesk/internal/hub"
	"VolDesk/pkg/cache"
	pkgch "VolDesk/pkg/clickhouse"
	"VolDesk/pkg/config"
	xhttp "VolDesk/pkg/http"
	pkgkafka "VolDesk/pkg/kafka"
	applogger "VolDesk/pkg/logger"
)

// App encapsulates the entire application lifecycle: the failover selector,
// the change-feed hub, the HTTP surface, and the optional Kafka ingestion
// path.
type App struct {
	cfg      *config.Config
	log      *applogger.Logger
	selector *failover.Selector
	notifier *hub.Hub
	server   *xhttp.Server
	consumer *pkgkafka.Consumer
	handler  pkgkafka.MessageHandler
	chClient *pkgch.Client
	local    repository.Backend
	cache    cache.Service
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	selector *failover.Selector,
	notifier *hub.Hub,
	server *xhttp.Server,
	chClient *pkgch.Client,
	local repository.Backend,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		selector: selector,
		notifier: notifier,
		server:   server,
		chClient: chClient,
		local:    local,
	}
}

// SetConsumer attaches the Kafka ingestion path.
func (a *App) SetConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	a.consumer = c
	a.handler = h
}

// SetCache attaches the response cache so shutdown can release it.
func (a *App) SetCache(c cache.Service) { a.cache = c }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Probe the remote and pick the serving backend before taking traffic.
	a.selector.Start(ctx)
	a.log.Info("storage ready", applogger.String("backend", a.selector.CurrentName()))

	if a.consumer != nil && a.handler != nil {
		a.consumer.RegisterHandler(a.handler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
	}

	if err := a.server.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services: stop taking new work first, then
// drain, then release infrastructure handles.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.selector.Stop()
	a.notifier.Close()

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			a.log.Warn("local backend close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
