package di

import (
	"context"
	"fmt"
	"time"

	"VolDesk/internal/domain/repository"
	"VolDesk/internal/failover"
	"VolDesk/internal/handler/api"
	"VolDesk/internal/hub"
	internalrepo "VolDesk/internal/repository"
	"VolDesk/internal/store"
	"VolDesk/internal/usecase"
	"VolDesk/pkg/cache"
	pkgch "VolDesk/pkg/clickhouse"
	"VolDesk/pkg/config"
	xhttp "VolDesk/pkg/http"
	pkgkafka "VolDesk/pkg/kafka"
	"VolDesk/pkg/logger"
	"VolDesk/pkg/metrics"
	"VolDesk/pkg/server"
)

// RemoteBackend and LocalBackend disambiguate the two Backend bindings for
// the injector.
type RemoteBackend repository.Backend

type LocalBackend repository.Backend

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates the remote ClickHouse client. The client
// is not pinged here; the failover selector owns reachability.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	// Connect against the default database: the application database may not
	// exist yet, and the backend creates it with fully qualified names.
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.Remote.Host),
		pkgch.WithPort(cfg.Remote.Port),
		pkgch.WithDatabase("default"),
		pkgch.WithCredentials(cfg.Remote.User, cfg.Remote.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.Remote.UseHTTP),
		pkgch.WithTimeouts(cfg.Remote.DialTimeout, cfg.Remote.ReadTimeout, cfg.Remote.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRemoteBackend creates the remote storage backend.
func ProvideRemoteBackend(client *pkgch.Client, cfg *config.Config) RemoteBackend {
	return internalrepo.NewClickHouseBackend(client.DB(), cfg.Remote.Database)
}

// ProvideLocalBackend opens the embedded fallback database and initializes
// its schema. The local backend must be usable before the first probe
// completes, so this fails the whole startup on error.
func ProvideLocalBackend(cfg *config.Config) (LocalBackend, error) {
	b, err := internalrepo.NewSQLiteBackend(cfg.Local.Path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Init(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("local schema: %w", err)
	}
	return b, nil
}

// ProvideSelector creates the backend failover selector.
func ProvideSelector(
	remote RemoteBackend,
	local LocalBackend,
	cfg *config.Config,
	log *logger.Logger,
	m repository.Metrics,
) *failover.Selector {
	return failover.New(remote, local, failover.Config{
		ProbeTimeout:   cfg.Failover.ProbeTimeout,
		HealthInterval: cfg.Failover.HealthInterval,
		RequestTimeout: cfg.Remote.RequestTimeout,
	}, log, m)
}

// ProvideHub creates the change-feed hub.
func ProvideHub(cfg *config.Config, log *logger.Logger, m repository.Metrics) *hub.Hub {
	return hub.New(cfg.Hub.SubscriberBuffer, log, m)
}

// ProvideStore creates the record store.
func ProvideStore(sel *failover.Selector, h *hub.Hub, log *logger.Logger, m repository.Metrics) *store.Store {
	return store.New(sel, h, log, m)
}

// ProvideCache creates the response cache per config, or nil when disabled.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedisCache(
			cache.WithRedisHost(cfg.Cache.Redis.Host),
			cache.WithRedisPort(cfg.Cache.Redis.Port),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		)
	}
	return cache.NewMemoryCache(), nil
}

// ProvideRouter composes the HTTP handlers.
func ProvideRouter(cfg *config.Config, log *logger.Logger, st *store.Store, c cache.Service) *api.Router {
	dashboard := api.NewDashboardHandler(log, st)
	if c != nil {
		dashboard.SetCache(c, cfg.Cache.TTL)
	}
	stream := api.NewStreamHandler(log, st)
	return api.NewRouter(dashboard, stream)
}

// ProvideHTTPServer creates the HTTP server with routes registered.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, router *api.Router) *xhttp.Server {
	return xhttp.NewServer(router, log,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)
}

// ProvideKafkaConsumer creates the ingestion consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRecordIngestor creates the Kafka ingestion handler.
func ProvideRecordIngestor(cfg *config.Config, st *store.Store, log *logger.Logger) *usecase.RecordIngestor {
	return usecase.NewRecordIngestor(cfg.Kafka.Topic, st, log)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	sel *failover.Selector,
	h *hub.Hub,
	httpServer *xhttp.Server,
	chClient *pkgch.Client,
	local LocalBackend,
	consumer *pkgkafka.Consumer,
	ingestor *usecase.RecordIngestor,
	c cache.Service,
) *server.App {
	app := server.New(cfg, log, sel, h, httpServer, chClient, local)
	if consumer != nil {
		app.SetConsumer(consumer, ingestor)
	}
	if c != nil {
		app.SetCache(c)
	}
	return app
}
