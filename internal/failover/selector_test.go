package failover

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/domain/repository"
	applogger "VolDesk/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordWrite(kind, backend string)     {}
func (nopMetrics) RecordError(kind string)              {}
func (nopMetrics) RecordFailover(direction string)      {}
func (nopMetrics) SetActiveBackend(name string)         {}
func (nopMetrics) SetSubscribers(n int)                 {}
func (nopMetrics) AddDroppedEvents(n int)               {}
func (nopMetrics) RecordLatency(op string, sec float64) {}

type fakeBackend struct {
	name      string
	pingErr   error
	upsertErr error
	upserts   int
}

func (f *fakeBackend) Name() string                   { return f.name }
func (f *fakeBackend) Init(ctx context.Context) error { return nil }
func (f *fakeBackend) Upsert(ctx context.Context, rec models.Record) error {
	f.upserts++
	return f.upsertErr
}
func (f *fakeBackend) Query(ctx context.Context, q models.Query) ([]models.Record, error) {
	return nil, nil
}
func (f *fakeBackend) ListTickers(ctx context.Context) ([]models.TickerMeta, error) {
	return nil, nil
}
func (f *fakeBackend) RowCounts(ctx context.Context) (map[models.Kind]int64, error) {
	return nil, nil
}
func (f *fakeBackend) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeBackend) Close() error                   { return nil }

func newTestSelector(remote, local *fakeBackend) *Selector {
	return New(remote, local, Config{
		ProbeTimeout:   100 * time.Millisecond,
		HealthInterval: time.Hour, // health checks driven manually in tests
		RequestTimeout: 100 * time.Millisecond,
	}, applogger.Nop(), nopMetrics{})
}

func upsertOn(s *Selector) (string, error) {
	var name string
	err := s.Do(context.Background(), func(ctx context.Context, b repository.Backend) error {
		name = b.Name()
		return b.Upsert(ctx, models.DmaPoint{Ticker: "NVDA", Window: 50, AsOf: time.Now()})
	})
	return name, err
}

func TestStartUsesRemoteWhenReachable(t *testing.T) {
	remote := &fakeBackend{name: "remote"}
	local := &fakeBackend{name: "local"}
	s := newTestSelector(remote, local)

	s.Start(context.Background())
	defer s.Stop()

	if s.State() != UsingRemote {
		t.Fatalf("expected UsingRemote, got %v", s.State())
	}
	name, err := upsertOn(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "remote" {
		t.Fatalf("expected remote, got %s", name)
	}
}

func TestStartFallsBackWhenProbeFails(t *testing.T) {
	remote := &fakeBackend{name: "remote", pingErr: syscall.ECONNREFUSED}
	local := &fakeBackend{name: "local"}
	s := newTestSelector(remote, local)

	s.Start(context.Background())
	defer s.Stop()

	if s.State() != UsingLocal {
		t.Fatalf("expected UsingLocal, got %v", s.State())
	}
	name, err := upsertOn(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "local" {
		t.Fatalf("expected local, got %s", name)
	}
}

func TestConnectivityErrorTriggersSingleLocalRetry(t *testing.T) {
	remote := &fakeBackend{name: "remote", upsertErr: syscall.ECONNRESET}
	local := &fakeBackend{name: "local"}
	s := newTestSelector(remote, local)

	s.Start(context.Background())
	defer s.Stop()

	name, err := upsertOn(s)
	if err != nil {
		t.Fatalf("expected retried write to succeed, got %v", err)
	}
	if name != "local" {
		t.Fatalf("expected retry on local, got %s", name)
	}
	if remote.upserts != 1 || local.upserts != 1 {
		t.Fatalf("expected exactly one attempt each, got remote=%d local=%d", remote.upserts, local.upserts)
	}
	if s.State() != UsingLocal {
		t.Fatalf("expected demotion to UsingLocal, got %v", s.State())
	}
}

func TestBothBackendsDownReturnsStorageUnavailable(t *testing.T) {
	remote := &fakeBackend{name: "remote", upsertErr: syscall.ECONNRESET}
	local := &fakeBackend{name: "local", upsertErr: syscall.ECONNREFUSED}
	s := newTestSelector(remote, local)

	s.Start(context.Background())
	defer s.Stop()

	_, err := upsertOn(s)
	if !errors.Is(err, models.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestNonConnectivityErrorSurfacesWithoutFailover(t *testing.T) {
	appErr := errors.New("constraint violated")
	remote := &fakeBackend{name: "remote", upsertErr: appErr}
	local := &fakeBackend{name: "local"}
	s := newTestSelector(remote, local)

	s.Start(context.Background())
	defer s.Stop()

	_, err := upsertOn(s)
	if !errors.Is(err, appErr) {
		t.Fatalf("expected application error, got %v", err)
	}
	if local.upserts != 0 {
		t.Fatalf("local must not be tried for non-connectivity errors")
	}
	if s.State() != UsingRemote {
		t.Fatalf("expected no demotion, got %v", s.State())
	}
}

func TestHealthCheckPromotesAfterRecovery(t *testing.T) {
	remote := &fakeBackend{name: "remote", pingErr: syscall.ECONNREFUSED}
	local := &fakeBackend{name: "local"}
	s := newTestSelector(remote, local)

	s.Start(context.Background())
	defer s.Stop()

	if s.State() != UsingLocal {
		t.Fatalf("expected UsingLocal, got %v", s.State())
	}

	remote.pingErr = nil
	s.check()

	if s.State() != UsingRemote {
		t.Fatalf("expected promotion to UsingRemote, got %v", s.State())
	}
	if s.CurrentName() != "remote" {
		t.Fatalf("expected remote active, got %s", s.CurrentName())
	}
}

func TestHealthCheckDemotesWhenProbeFails(t *testing.T) {
	remote := &fakeBackend{name: "remote"}
	local := &fakeBackend{name: "local"}
	s := newTestSelector(remote, local)

	s.Start(context.Background())
	defer s.Stop()

	remote.pingErr = syscall.ETIMEDOUT
	s.check()

	if s.State() != UsingLocal {
		t.Fatalf("expected demotion to UsingLocal, got %v", s.State())
	}
}
