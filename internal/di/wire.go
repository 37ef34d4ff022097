//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"VolDesk/pkg/config"
	"VolDesk/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Storage backends
		ProvideClickHouseClient,
		ProvideRemoteBackend,
		ProvideLocalBackend,
		ProvideSelector,

		// Store and change feed
		ProvideHub,
		ProvideStore,

		// HTTP surface
		ProvideCache,
		ProvideRouter,
		ProvideHTTPServer,

		// Kafka ingestion
		ProvideKafkaConsumer,
		ProvideRecordIngestor,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
