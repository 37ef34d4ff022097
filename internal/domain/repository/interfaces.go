package repository

import (
	"context"

	"VolDesk/internal/domain/models"
)

// Backend is the capability set both storage variants implement: the remote
// replicated database and the local embedded fallback. The failover selector
// holds one active Backend at a time; callers never pick a Backend
// themselves.
//
// Upsert must be idempotent on the record's natural key (a duplicate attempt
// after an ambiguous remote commit is a no-op overwrite) and must touch the
// owning TickerMeta row in the same logical transaction.
type Backend interface {
	Name() string
	Init(ctx context.Context) error
	Upsert(ctx context.Context, rec models.Record) error
	Query(ctx context.Context, q models.Query) ([]models.Record, error)
	ListTickers(ctx context.Context) ([]models.TickerMeta, error)
	RowCounts(ctx context.Context) (map[models.Kind]int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Metrics records operational counters. Implemented by pkg/metrics
// (Prometheus); tests use a no-op.
type Metrics interface {
	RecordWrite(kind, backend string)
	RecordError(kind string)
	RecordFailover(direction string)
	SetActiveBackend(name string)
	SetSubscribers(n int)
	AddDroppedEvents(n int)
	RecordLatency(op string, seconds float64)
}
