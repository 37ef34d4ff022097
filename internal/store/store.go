package store

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/domain/repository"
	"VolDesk/internal/failover"
	"VolDesk/internal/hub"
	applogger "VolDesk/pkg/logger"
)

// Store is the record store: validated, idempotent writes routed through the
// failover selector, ordered fan-out of committed records, and read queries
// against whichever backend is currently active.
//
// Writes for the same ticker are serialized; writes for different tickers
// proceed concurrently. Every successful write gets a store-wide sequence
// number and is published to the hub only after the commit returned, in
// sequence order.
type Store struct {
	sel      *failover.Selector
	notifier *hub.Hub
	log      *applogger.Logger
	metrics  repository.Metrics
	validate *validator.Validate

	// publishMu orders sequence assignment and hub publication together, so
	// per-subscriber delivery order always matches seq order.
	publishMu sync.Mutex
	seq       uint64

	tickerMu    sync.Mutex
	tickerLocks map[string]*sync.Mutex
}

// New creates a store on top of the selector and hub.
func New(sel *failover.Selector, notifier *hub.Hub, log *applogger.Logger, metrics repository.Metrics) *Store {
	return &Store{
		sel:         sel,
		notifier:    notifier,
		log:         log,
		metrics:     metrics,
		validate:    newRecordValidator(),
		tickerLocks: make(map[string]*sync.Mutex),
	}
}

func newRecordValidator() *validator.Validate {
	v := validator.New()
	// Numeric record fields must be finite; NaN and ±Inf are malformed input.
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// Write validates and commits one record, touches its TickerMeta, and
// publishes the commit to live subscribers. Returns the commit's sequence
// number and the backend that took it. Fails with *models.ValidationError
// for malformed records and models.ErrStorageUnavailable when neither
// backend is reachable; both are the caller's to retry or not.
func (s *Store) Write(ctx context.Context, rec models.Record) (models.CommitResult, error) {
	if rec == nil {
		return models.CommitResult{}, &models.ValidationError{
			Violations: []models.FieldViolation{{Field: "record", Reason: "is nil"}},
		}
	}
	if err := s.validateRecord(rec); err != nil {
		s.metrics.RecordError("validation")
		return models.CommitResult{}, err
	}

	lock := s.lockFor(rec.TickerSymbol())
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	var backend string
	err := s.sel.Do(ctx, func(ctx context.Context, b repository.Backend) error {
		backend = b.Name()
		return b.Upsert(ctx, rec)
	})
	if err != nil {
		s.metrics.RecordError("write")
		return models.CommitResult{}, fmt.Errorf("write %s: %w", rec.Kind(), err)
	}
	s.metrics.RecordWrite(string(rec.Kind()), backend)
	s.metrics.RecordLatency("write", time.Since(start).Seconds())

	s.publishMu.Lock()
	s.seq++
	seq := s.seq
	s.notifier.Publish(models.Event{Seq: seq, Kind: rec.Kind(), Record: rec})
	s.publishMu.Unlock()

	return models.CommitResult{Seq: seq, Backend: backend, Record: rec}, nil
}

// Query reads records matching q from the active backend, ordered by as-of
// ascending. An empty result is not an error.
func (s *Store) Query(ctx context.Context, q models.Query) ([]models.Record, error) {
	if _, err := models.NewRecord(q.Kind); err != nil {
		return nil, err
	}

	start := time.Now()
	var out []models.Record
	err := s.sel.Do(ctx, func(ctx context.Context, b repository.Backend) error {
		var qerr error
		out, qerr = b.Query(ctx, q)
		return qerr
	})
	if err != nil {
		s.metrics.RecordError("query")
		return nil, fmt.Errorf("query %s: %w", q.Kind, err)
	}
	s.metrics.RecordLatency("query", time.Since(start).Seconds())
	return out, nil
}

// Subscribe registers a live subscriber starting from "now".
func (s *Store) Subscribe() *hub.Subscription {
	return s.notifier.Subscribe()
}

func (s *Store) validateRecord(rec models.Record) error {
	writable := false
	for _, k := range models.WritableKinds() {
		if rec.Kind() == k {
			writable = true
			break
		}
	}
	if !writable {
		return &models.ValidationError{
			Kind:       rec.Kind(),
			Violations: []models.FieldViolation{{Field: "kind", Reason: "not writable"}},
		}
	}

	err := s.validate.Struct(rec)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &models.ValidationError{
			Kind:       rec.Kind(),
			Violations: []models.FieldViolation{{Field: "record", Reason: err.Error()}},
		}
	}
	violations := make([]models.FieldViolation, 0, len(verrs))
	for _, fe := range verrs {
		violations = append(violations, models.FieldViolation{
			Field:  fe.Field(),
			Reason: fmt.Sprintf("failed %q", fe.Tag()),
		})
	}
	return &models.ValidationError{Kind: rec.Kind(), Violations: violations}
}

func (s *Store) lockFor(ticker string) *sync.Mutex {
	s.tickerMu.Lock()
	defer s.tickerMu.Unlock()

	lock, ok := s.tickerLocks[ticker]
	if !ok {
		lock = &sync.Mutex{}
		s.tickerLocks[ticker] = lock
	}
	return lock
}
